package repositories

import (
	"fmt"
	"strings"
	"time"
)

// Row is a human readable view of one badger entry, used by read-only tooling.
type Row struct {
	Key    string
	Type   string
	Time   string
	Detail string
}

// Describe decodes a raw entry according to the key layout. Entries that fail
// to decode are still listed, with the error as detail.
func Describe(key, value []byte) Row {
	k := string(key)
	row := Row{Key: k, Type: "RAW", Time: "--:--:--", Detail: fmt.Sprintf("Size: %d bytes", len(value))}

	switch {
	case strings.HasPrefix(k, "user:id:"):
		row.Type = "USER"
		u, err := decodeUser(value)
		if err != nil {
			row.Detail = err.Error()
			return row
		}
		row.Time = formatTime(u.CreatedAt)
		row.Detail = fmt.Sprintf("%s active=%t", u.Username, u.Active)
	case strings.HasPrefix(k, "group:id:"):
		row.Type = "GROUP"
		g, err := decodeGroup(value)
		if err != nil {
			row.Detail = err.Error()
			return row
		}
		row.Time = formatTime(g.CreatedAt)
		row.Detail = g.Name
	case strings.HasPrefix(k, "msg:"):
		row.Type = "MESSAGE"
		m, err := decodeMessage(value)
		if err != nil {
			row.Detail = err.Error()
			return row
		}
		row.Time = formatTime(m.SentAt)
		row.Detail = fmt.Sprintf("#%d from %d: %s", m.Seq, m.SenderID, m.Content)
		if m.IsFile() {
			row.Detail += fmt.Sprintf(" [%s %s]", m.File.Path, m.File.MimeType)
		}
	case strings.HasPrefix(k, "user:name:"), strings.HasPrefix(k, "group:name:"):
		row.Type = "INDEX"
		row.Detail = "-> " + string(value)
	case strings.HasPrefix(k, "member:"), strings.HasPrefix(k, "membership:"):
		row.Type = "MEMBER"
		row.Detail = "-"
	case strings.HasPrefix(k, "gseq:"):
		row.Type = "SEQUENCE"
		row.Detail = "last=" + string(value)
	case strings.HasPrefix(k, blacklistPrefix):
		row.Type = "CENSORED"
		row.Detail = strings.TrimPrefix(k, blacklistPrefix)
	case strings.HasPrefix(k, "seq:"):
		row.Type = "LEASE"
	}
	return row
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Format(time.DateTime)
}
