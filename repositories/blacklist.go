package repositories

import (
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// IBlacklistRepository persists the censored words fed to the moderator.
// Words live in the keys, values are empty.
type IBlacklistRepository interface {
	AddWords(words ...string) error
	Words() ([]string, error)
}

type BlacklistRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBlacklistRepository(db *badger.DB, log *slog.Logger) BlacklistRepository {
	return BlacklistRepository{db: db, log: log}
}

func (b BlacklistRepository) AddWords(words ...string) error {
	wb := b.db.NewWriteBatch()
	for _, word := range words {
		if word == "" {
			continue
		}
		if err := wb.Set(blacklistKey(word), nil); err != nil {
			wb.Cancel()
			return err
		}
	}
	return wb.Flush()
}

func (b BlacklistRepository) Words() ([]string, error) {
	var words []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // words are in the keys
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(blacklistPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			words = append(words, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	b.log.Debug("Blacklist loaded", "words", len(words))
	return words, err
}
