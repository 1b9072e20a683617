package repositories

import (
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db       *badger.DB
	users    *UserRepository
	groups   *GroupRepository
	messages MessageRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)

	users, err := NewUserRepository(db, log, 10)
	req.NoError(err)
	groups, err := NewGroupRepository(db, log, 10)
	req.NoError(err)

	t.Cleanup(func() {
		_ = users.Close()
		_ = groups.Close()
		_ = db.Close()
	})
	return fixture{db: db, users: users, groups: groups, messages: NewMessageRepository(db, log)}
}
