// Package storage owns the badger database and exposes the durable operations
// the chat engine needs. Every failure that is not a domain error is reported
// as ErrStorageUnavailable.
package storage

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"

	"groupchat/auth"
	"groupchat/domain"
	"groupchat/errors"
	"groupchat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const (
	DefaultHistoryLimit = 50
	sequenceBandwidth   = 100
)

type Store struct {
	db         *badger.DB
	users      *repositories.UserRepository
	groups     *repositories.GroupRepository
	messages   repositories.MessageRepository
	blacklist  repositories.BlacklistRepository
	hashParams auth.Params
	log        *slog.Logger
}

type Option func(*options)

type options struct {
	inMemory   bool
	hashParams auth.Params
}

// WithInMemory keeps everything in RAM. Meant for tests.
func WithInMemory() Option {
	return func(o *options) { o.inMemory = true }
}

// WithHashParams overrides the Argon2 cost used for new credentials.
func WithHashParams(p auth.Params) Option {
	return func(o *options) { o.hashParams = p }
}

// Open opens a single long-lived badger database at path.
func Open(path string, log *slog.Logger, opts ...Option) (*Store, error) {
	o := options{hashParams: auth.DefaultParams}
	for _, opt := range opts {
		opt(&o)
	}

	badgerOpts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if o.inMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}

	users, err := repositories.NewUserRepository(db, log, sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}
	groups, err := repositories.NewGroupRepository(db, log, sequenceBandwidth)
	if err != nil {
		_ = users.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}

	log.Info("Store opened", "path", path, "in_memory", o.inMemory)
	return &Store{
		db:         db,
		users:      users,
		groups:     groups,
		messages:   repositories.NewMessageRepository(db, log),
		blacklist:  repositories.NewBlacklistRepository(db, log),
		hashParams: o.hashParams,
		log:        log,
	}, nil
}

// DB exposes the underlying database to read-only tooling.
func (s *Store) DB() *badger.DB {
	return s.db
}

func (s *Store) IsOpen() bool {
	return !s.db.IsClosed()
}

// Close releases the leased id ranges then closes badger.
func (s *Store) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	err := goerrors.Join(s.users.Close(), s.groups.Close(), s.db.Close())
	if err != nil {
		s.log.Error("Store closed with errors", "error", err)
		return fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}
	s.log.Info("Store closed")
	return nil
}

// CreateUser hashes the credential and registers a new account.
func (s *Store) CreateUser(ctx context.Context, username, credential string) (domain.UserID, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	hash, err := auth.HashPasswordWith(credential, s.hashParams)
	if err != nil {
		return 0, s.wrap(err)
	}
	id, err := s.users.CreateUser(username, hash)
	return id, s.wrap(err)
}

// VerifyCredential returns the user id when the credential matches the stored hash.
func (s *Store) VerifyCredential(ctx context.Context, username, credential string) (domain.UserID, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	user, err := s.users.GetUserByName(username)
	if err != nil {
		return 0, s.wrap(err)
	}
	match, err := auth.ComparePassword(credential, user.PasswordHash)
	if err != nil {
		return 0, s.wrap(err)
	}
	if !match {
		return 0, errors.ErrBadCredential
	}
	return user.ID, nil
}

func (s *Store) Username(ctx context.Context, id domain.UserID) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	user, err := s.users.GetUser(id)
	if err != nil {
		return "", s.wrap(err)
	}
	return user.Username, nil
}

func (s *Store) SetActive(ctx context.Context, id domain.UserID, active bool) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.wrap(s.users.SetActive(id, active))
}

// CreateGroup validates the name (trimmed, 1 to 100 characters) and stores an empty group.
func (s *Store) CreateGroup(ctx context.Context, name string) (domain.GroupID, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	name, err := auth.ValidateGroupName(name)
	if err != nil {
		return 0, err
	}
	id, err := s.groups.CreateGroup(name)
	return id, s.wrap(err)
}

func (s *Store) Group(ctx context.Context, id domain.GroupID) (domain.Group, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Group{}, err
	}
	group, err := s.groups.GetGroup(id)
	return group, s.wrap(err)
}

func (s *Store) GroupByName(ctx context.Context, name string) (domain.Group, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Group{}, err
	}
	group, err := s.groups.GetGroupByName(name)
	return group, s.wrap(err)
}

func (s *Store) AddMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.wrap(s.groups.AddMember(groupID, userID))
}

func (s *Store) RemoveMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.wrap(s.groups.RemoveMember(groupID, userID))
}

func (s *Store) Members(ctx context.Context, groupID domain.GroupID) (domain.UserSet, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	members, err := s.groups.Members(groupID)
	return members, s.wrap(err)
}

func (s *Store) UserGroups(ctx context.Context, userID domain.UserID) ([]domain.Group, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	groups, err := s.groups.UserGroups(userID)
	return groups, s.wrap(err)
}

// PersistMessage assigns the message id and the group sequence. Non-members
// are rejected with ErrNotMember and nothing is written.
func (s *Store) PersistMessage(ctx context.Context, message domain.NewMessage) (domain.Message, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Message{}, err
	}
	stored, err := s.messages.StoreMessage(message)
	return stored, s.wrap(err)
}

// RecentMessages returns at most limit messages, newest first.
func (s *Store) RecentMessages(ctx context.Context, groupID domain.GroupID, limit int) ([]domain.HistoryEntry, error) {
	return s.History(ctx, domain.HistoryQuery{GroupID: groupID, Limit: limit})
}

// History pages through a group's messages with senders' usernames resolved at
// read time. A zero limit falls back to DefaultHistoryLimit.
func (s *Store) History(ctx context.Context, query domain.HistoryQuery) ([]domain.HistoryEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	messages, err := s.messages.GetMessages(query.GroupID, query.Before, limit)
	if err != nil {
		return nil, s.wrap(err)
	}

	usernames := map[domain.UserID]string{}
	senders := lo.Uniq(lo.Map(messages, func(m domain.Message, _ int) domain.UserID { return m.SenderID }))
	for _, sender := range senders {
		user, err := s.users.GetUser(sender)
		switch {
		case err == nil:
			usernames[sender] = user.Username
		case goerrors.Is(err, errors.ErrUserNotFound):
			// Senders are plain references: history outlives accounts.
			usernames[sender] = ""
		default:
			return nil, s.wrap(err)
		}
	}

	return lo.Map(messages, func(m domain.Message, _ int) domain.HistoryEntry {
		return domain.HistoryEntry{Message: m, Username: usernames[m.SenderID]}
	}), nil
}

func (s *Store) MessageCount(ctx context.Context, groupID domain.GroupID) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	count, err := s.messages.CountMessages(groupID)
	return count, s.wrap(err)
}

func (s *Store) CensoredWords(ctx context.Context) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	words, err := s.blacklist.Words()
	return words, s.wrap(err)
}

func (s *Store) AddCensoredWords(ctx context.Context, words ...string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.wrap(s.blacklist.AddWords(words...))
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return fmt.Errorf("%w: database closed", errors.ErrStorageUnavailable)
	}
	return nil
}

// wrap keeps domain errors as they are and turns anything else into ErrStorageUnavailable.
func (s *Store) wrap(err error) error {
	if err == nil {
		return nil
	}
	for _, category := range []error{
		errors.ErrAuth,
		errors.ErrDuplicate,
		errors.ErrNotFound,
		errors.ErrPermissionDenied,
		errors.ErrInvalidArgument,
		errors.ErrStorageUnavailable,
	} {
		if goerrors.Is(err, category) {
			return err
		}
	}
	s.log.Error("Storage failure", "error", err)
	return fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
}
