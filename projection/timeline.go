// Package projection builds local timelines from the messages a client observes.
// Handles ordering, deduplication and gap detection by group sequence.
// Does not talk to the server or render anything.
package projection

import (
	"sort"

	"groupchat/protocol"
)

// Timeline holds the messages of one group seen by a client, ordered by sequence.
type Timeline struct {
	GroupID  uint64
	Messages []protocol.MessageView
	seen     map[uint64]struct{}
}

func NewTimeline(groupID uint64) *Timeline {
	return &Timeline{GroupID: groupID, seen: make(map[uint64]struct{})}
}

// Consume records a message and reports whether it was new. Live broadcasts
// and history pages may overlap: a sequence already seen is ignored.
func (t *Timeline) Consume(m protocol.MessageView) bool {
	if m.GroupID != t.GroupID {
		return false
	}
	if _, ok := t.seen[m.Seq]; ok {
		return false
	}
	t.seen[m.Seq] = struct{}{}

	i := sort.Search(len(t.Messages), func(i int) bool { return t.Messages[i].Seq > m.Seq })
	t.Messages = append(t.Messages, protocol.MessageView{})
	copy(t.Messages[i+1:], t.Messages[i:])
	t.Messages[i] = m
	return true
}

// Last is the highest sequence seen, zero when empty.
func (t *Timeline) Last() uint64 {
	if len(t.Messages) == 0 {
		return 0
	}
	return t.Messages[len(t.Messages)-1].Seq
}

// Gap is an inclusive range of sequences that were never seen.
type Gap struct {
	From, To uint64
}

func (g Gap) Len() uint64 {
	return g.To - g.From + 1
}

// Gaps lists the ranges missing between the first and the last message seen.
// It grows with the number of holes, not with their size.
func (t *Timeline) Gaps() []Gap {
	var gaps []Gap
	for i := 1; i < len(t.Messages); i++ {
		prev, next := t.Messages[i-1].Seq, t.Messages[i].Seq
		if next > prev+1 {
			gaps = append(gaps, Gap{From: prev + 1, To: next - 1})
		}
	}
	return gaps
}

// Missing counts the sequences covered by Gaps.
func (t *Timeline) Missing() uint64 {
	var missing uint64
	for _, gap := range t.Gaps() {
		missing += gap.Len()
	}
	return missing
}

// Timelines keeps one timeline per group.
type Timelines map[uint64]*Timeline

func (ts Timelines) Consume(m protocol.MessageView) bool {
	t, ok := ts[m.GroupID]
	if !ok {
		t = NewTimeline(m.GroupID)
		ts[m.GroupID] = t
	}
	return t.Consume(m)
}
