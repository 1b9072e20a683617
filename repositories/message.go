package repositories

import (
	"fmt"
	"log/slog"

	"groupchat/domain"
	"groupchat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	StoreMessage(message domain.NewMessage) (domain.Message, error)
	GetMessages(groupID domain.GroupID, before uint64, limit int) ([]domain.Message, error)
	CountMessages(groupID domain.GroupID) (uint64, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// StoreMessage persists a message in BadgerDB.
// The group sequence is read, incremented and written in the same transaction
// as the message, so sequences are gap free and strictly increasing per group.
// The key is formatted as "msg:{group_id}:{seq}" with both parts padded to 20
// digits, which keeps messages sorted by sequence in a prefix scan.
// A sender that is not a member of the group is rejected and nothing is written.
func (m MessageRepository) StoreMessage(message domain.NewMessage) (domain.Message, error) {
	var stored domain.Message
	id := uuid.New()
	err := update(m.db, func(txn *badger.Txn) error {
		if _, err := getGroup(txn, message.GroupID); err != nil {
			return err
		}
		member, err := exists(txn, memberKey(message.GroupID, message.SenderID))
		if err != nil {
			return err
		}
		if !member {
			return errors.ErrNotMember
		}

		last, err := getUint(txn, groupSeqKey(message.GroupID))
		if err != nil {
			return err
		}
		stored = domain.Message{
			ID:       id,
			Seq:      last + 1,
			GroupID:  message.GroupID,
			SenderID: message.SenderID,
			Content:  message.Content,
			File:     message.File,
			SentAt:   message.SentAt.UTC(),
		}
		if err := setUint(txn, groupSeqKey(message.GroupID), stored.Seq); err != nil {
			return err
		}
		return txn.Set(messageKey(message.GroupID, stored.Seq), encodeMessage(stored))
	})
	if err != nil {
		return domain.Message{}, err
	}
	return stored, nil
}

// GetMessages returns at most limit messages of a group, newest first.
// A non-zero before restricts the page to sequences strictly lower than it,
// which lets callers page backwards with the oldest sequence they hold.
func (m MessageRepository) GetMessages(groupID domain.GroupID, before uint64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		if _, err := getGroup(txn, groupID); err != nil {
			return err
		}
		prefix := messagePrefix(groupID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration seeks to the greatest key lower or equal to the seek key.
		var seekKey []byte
		switch before {
		case 0:
			seekKey = append(prefix, []byte(maxPadded)...)
		default:
			seekKey = messageKey(groupID, before-1)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			var message domain.Message
			err := it.Item().Value(func(val []byte) error {
				var err error
				message, err = decodeMessage(val)
				return err
			})
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// CountMessages reads the group sequence: messages are never deleted so the
// last sequence is also the number of messages.
func (m MessageRepository) CountMessages(groupID domain.GroupID) (uint64, error) {
	var count uint64
	err := m.db.View(func(txn *badger.Txn) error {
		if _, err := getGroup(txn, groupID); err != nil {
			return err
		}
		var err error
		count, err = getUint(txn, groupSeqKey(groupID))
		return err
	})
	return count, err
}
