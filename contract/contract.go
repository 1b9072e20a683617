//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"groupchat/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// IDirectory answers membership questions, caching what the store says.
type IDirectory interface {
	IsMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) (bool, error)
	Members(ctx context.Context, groupID domain.GroupID) (domain.UserSet, error)
	Join(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error
	Leave(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error
}

// IBroadcaster fans a persisted message out to the connected members of its group.
// It never fails: delivery problems are handled by dropping the faulty session.
type IBroadcaster interface {
	Broadcast(entry domain.HistoryEntry, members domain.UserSet) int
}

type IAuthService interface {
	Register(ctx context.Context, username, password string) (domain.Identity, error)
	Login(ctx context.Context, username, password string) (domain.Identity, error)
	Resume(ctx context.Context, token string) (domain.Identity, error)
	MarkActive(ctx context.Context, userID domain.UserID, active bool) error
}

type IChatService interface {
	SendGroupMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	CreateGroup(ctx context.Context, creator domain.UserID, cmd domain.CreateGroupCommand) (domain.Group, error)
	JoinGroup(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error
	LeaveGroup(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error
	History(ctx context.Context, userID domain.UserID, query domain.HistoryQuery) ([]domain.HistoryEntry, error)
	UserGroups(ctx context.Context, userID domain.UserID) ([]domain.Group, error)
}

// Conn is one client transport carrying whole frames.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	RemoteAddr() string
	Close() error
}
