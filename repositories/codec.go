package repositories

import (
	"fmt"
	"time"

	"groupchat/domain"
	"groupchat/errors"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored with the protobuf wire format. Field numbers are part of
// the on-disk format: never renumber, only append.

const (
	userFieldID        protowire.Number = 1
	userFieldUsername  protowire.Number = 2
	userFieldHash      protowire.Number = 3
	userFieldActive    protowire.Number = 4
	userFieldCreatedAt protowire.Number = 5
)

const (
	groupFieldID        protowire.Number = 1
	groupFieldName      protowire.Number = 2
	groupFieldCreatedAt protowire.Number = 3
)

const (
	messageFieldID       protowire.Number = 1
	messageFieldSeq      protowire.Number = 2
	messageFieldGroupID  protowire.Number = 3
	messageFieldSenderID protowire.Number = 4
	messageFieldContent  protowire.Number = 5
	messageFieldFilePath protowire.Number = 6
	messageFieldMimeType protowire.Number = 7
	messageFieldSentAt   protowire.Number = 8
)

func encodeUser(u domain.User) []byte {
	var b []byte
	b = appendVarint(b, userFieldID, uint64(u.ID))
	b = appendString(b, userFieldUsername, u.Username)
	b = appendString(b, userFieldHash, u.PasswordHash)
	b = appendVarint(b, userFieldActive, protowire.EncodeBool(u.Active))
	b = appendVarint(b, userFieldCreatedAt, uint64(u.CreatedAt.UnixNano()))
	return b
}

func decodeUser(b []byte) (domain.User, error) {
	var u domain.User
	err := decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == userFieldID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			u.ID = domain.UserID(v)
			return n, nil
		case num == userFieldUsername && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			u.Username = v
			return n, nil
		case num == userFieldHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			u.PasswordHash = v
			return n, nil
		case num == userFieldActive && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			u.Active = protowire.DecodeBool(v)
			return n, nil
		case num == userFieldCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			u.CreatedAt = fromNanos(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return u, err
}

func encodeGroup(g domain.Group) []byte {
	var b []byte
	b = appendVarint(b, groupFieldID, uint64(g.ID))
	b = appendString(b, groupFieldName, g.Name)
	b = appendVarint(b, groupFieldCreatedAt, uint64(g.CreatedAt.UnixNano()))
	return b
}

func decodeGroup(b []byte) (domain.Group, error) {
	var g domain.Group
	err := decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == groupFieldID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			g.ID = domain.GroupID(v)
			return n, nil
		case num == groupFieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			g.Name = v
			return n, nil
		case num == groupFieldCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			g.CreatedAt = fromNanos(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return g, err
}

func encodeMessage(m domain.Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, messageFieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, m.ID[:])
	b = appendVarint(b, messageFieldSeq, m.Seq)
	b = appendVarint(b, messageFieldGroupID, uint64(m.GroupID))
	b = appendVarint(b, messageFieldSenderID, uint64(m.SenderID))
	b = appendString(b, messageFieldContent, m.Content)
	if !m.File.IsZero() {
		b = appendString(b, messageFieldFilePath, m.File.Path)
		b = appendString(b, messageFieldMimeType, m.File.MimeType)
	}
	b = appendVarint(b, messageFieldSentAt, uint64(m.SentAt.UnixNano()))
	return b
}

func decodeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	var file domain.FileRef
	err := decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == messageFieldID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return 0, fmt.Errorf("%w: message id: %v", errors.ErrInvalidRecord, err)
			}
			m.ID = id
			return n, nil
		case num == messageFieldSeq && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Seq = v
			return n, nil
		case num == messageFieldGroupID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.GroupID = domain.GroupID(v)
			return n, nil
		case num == messageFieldSenderID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.SenderID = domain.UserID(v)
			return n, nil
		case num == messageFieldContent && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Content = v
			return n, nil
		case num == messageFieldFilePath && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			file.Path = v
			return n, nil
		case num == messageFieldMimeType && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			file.MimeType = v
			return n, nil
		case num == messageFieldSentAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.SentAt = fromNanos(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	if file.Path != "" {
		m.File = &file
	}
	return m, nil
}

// decodeFields walks every field of a record. consume returns the number of
// bytes it read for the field value, negative on a malformed value.
func decodeFields(b []byte, consume func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", errors.ErrInvalidRecord, protowire.ParseError(n))
		}
		b = b[n:]
		n, err := consume(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", errors.ErrInvalidRecord, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func fromNanos(v uint64) time.Time {
	return time.Unix(0, int64(v)).UTC()
}
