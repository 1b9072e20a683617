//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package contract

import (
	"context"

	"groupchat/domain"
)

// IStore is the durable storage API. Calls are synchronous and may be slow:
// never hold a lock guarding in-memory state across one of them.
type IStore interface {
	CreateUser(ctx context.Context, username, credential string) (domain.UserID, error)
	VerifyCredential(ctx context.Context, username, credential string) (domain.UserID, error)
	Username(ctx context.Context, id domain.UserID) (string, error)
	SetActive(ctx context.Context, id domain.UserID, active bool) error

	CreateGroup(ctx context.Context, name string) (domain.GroupID, error)
	Group(ctx context.Context, id domain.GroupID) (domain.Group, error)
	GroupByName(ctx context.Context, name string) (domain.Group, error)
	AddMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error
	RemoveMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error
	Members(ctx context.Context, groupID domain.GroupID) (domain.UserSet, error)
	UserGroups(ctx context.Context, userID domain.UserID) ([]domain.Group, error)

	PersistMessage(ctx context.Context, message domain.NewMessage) (domain.Message, error)
	RecentMessages(ctx context.Context, groupID domain.GroupID, limit int) ([]domain.HistoryEntry, error)
	History(ctx context.Context, query domain.HistoryQuery) ([]domain.HistoryEntry, error)
	MessageCount(ctx context.Context, groupID domain.GroupID) (uint64, error)

	IsOpen() bool
	Close() error
}
