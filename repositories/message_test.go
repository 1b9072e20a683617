package repositories

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"groupchat/domain"
	"groupchat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func seedGroup(t *testing.T, f fixture, usernames ...string) (domain.GroupID, []domain.UserID) {
	t.Helper()
	req := require.New(t)
	groupID, err := f.groups.CreateGroup("general")
	req.NoError(err)
	var ids []domain.UserID
	for _, name := range usernames {
		id, err := f.users.CreateUser(name, "hash")
		req.NoError(err)
		req.NoError(f.groups.AddMember(groupID, id))
		ids = append(ids, id)
	}
	return groupID, ids
}

func Test_Record_Multiple_Message(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	groupID, users := seedGroup(t, f, "alice", "bob")

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	contents := []string{"m1", "m2", "m3"}
	for i, content := range contents {
		message, err := f.messages.StoreMessage(domain.NewMessage{
			SenderID: users[i%2],
			GroupID:  groupID,
			Content:  content,
			SentAt:   at.Add(time.Duration(i) * time.Minute),
		})
		req.NoError(err)
		req.Equal(uint64(i+1), message.Seq)
	}

	// Then messages come back newest first
	fetched, err := f.messages.GetMessages(groupID, 0, 10)
	req.NoError(err)
	req.Len(fetched, 3)
	req.Equal("m3", fetched[0].Content)
	req.Equal("m2", fetched[1].Content)
	req.Equal("m1", fetched[2].Content)
	req.Equal(users[0], fetched[2].SenderID)
	req.True(at.Equal(fetched[2].SentAt))

	count, err := f.messages.CountMessages(groupID)
	req.NoError(err)
	req.Equal(uint64(3), count)
}

func Test_Record_Multiple_Message_And_Limit(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	groupID, users := seedGroup(t, f, "alice")

	for i := 1; i <= 5; i++ {
		_, err := f.messages.StoreMessage(domain.NewMessage{
			SenderID: users[0],
			GroupID:  groupID,
			Content:  fmt.Sprintf("m%d", i),
			SentAt:   time.Now(),
		})
		req.NoError(err)
	}

	// When asking for the two most recent messages
	fetched, err := f.messages.GetMessages(groupID, 0, 2)
	req.NoError(err)

	// Then m5 and m4 are returned, in that order
	req.Len(fetched, 2)
	req.Equal("m5", fetched[0].Content)
	req.Equal("m4", fetched[1].Content)

	// When paging before the oldest sequence held
	fetched, err = f.messages.GetMessages(groupID, fetched[1].Seq, 10)
	req.NoError(err)
	req.Len(fetched, 3)
	req.Equal("m3", fetched[0].Content)
	req.Equal("m1", fetched[2].Content)

	// Before the first sequence nothing remains
	fetched, err = f.messages.GetMessages(groupID, 1, 10)
	req.NoError(err)
	req.Empty(fetched)
}

func TestMessageRepository_FileReference(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	groupID, users := seedGroup(t, f, "alice")

	_, err := f.messages.StoreMessage(domain.NewMessage{
		SenderID: users[0],
		GroupID:  groupID,
		File:     &domain.FileRef{Path: "/tmp/report.pdf", MimeType: "application/pdf"},
		SentAt:   time.Now(),
	})
	req.NoError(err)

	fetched, err := f.messages.GetMessages(groupID, 0, 1)
	req.NoError(err)
	req.Len(fetched, 1)
	req.True(fetched[0].IsFile())
	req.Equal("/tmp/report.pdf", fetched[0].File.Path)
	req.Equal("application/pdf", fetched[0].File.MimeType)
}

func TestMessageRepository_NonMemberWritesNothing(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	groupID, _ := seedGroup(t, f, "alice")
	mallory, err := f.users.CreateUser("mallory", "hash")
	req.NoError(err)

	// When a non-member sends into the group
	_, err = f.messages.StoreMessage(domain.NewMessage{
		SenderID: mallory,
		GroupID:  groupID,
		Content:  "hello",
		SentAt:   time.Now(),
	})

	// Then the write is rejected and no message record exists
	req.ErrorIs(err, errors.ErrNotMember)
	count, err := f.messages.CountMessages(groupID)
	req.NoError(err)
	req.Zero(count)

	err = f.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := messagePrefix(groupID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			return fmt.Errorf("unexpected key %q", it.Item().Key())
		}
		return nil
	})
	req.NoError(err)

	// And an unknown group is reported as such
	_, err = f.messages.StoreMessage(domain.NewMessage{SenderID: mallory, GroupID: groupID + 1, Content: "x"})
	req.ErrorIs(err, errors.ErrGroupNotFound)
}

func TestMessageRepository_ConcurrentSequences(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	groupID, users := seedGroup(t, f, "alice", "bob", "carol")

	var wg sync.WaitGroup
	for _, user := range users {
		wg.Add(1)
		go func(user domain.UserID) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := f.messages.StoreMessage(domain.NewMessage{
					SenderID: user,
					GroupID:  groupID,
					Content:  "concurrent",
					SentAt:   time.Now(),
				})
				req.NoError(err)
			}
		}(user)
	}
	wg.Wait()

	// Then sequences are gap free
	fetched, err := f.messages.GetMessages(groupID, 0, 100)
	req.NoError(err)
	req.Len(fetched, 30)
	for i, message := range fetched {
		req.Equal(uint64(30-i), message.Seq)
	}
}
