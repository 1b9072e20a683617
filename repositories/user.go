package repositories

import (
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"groupchat/domain"
	"groupchat/errors"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	CreateUser(username, passwordHash string) (domain.UserID, error)
	GetUserByName(username string) (domain.User, error)
	GetUser(id domain.UserID) (domain.User, error)
	SetActive(id domain.UserID, active bool) error
	Close() error
}

type UserRepository struct {
	db       *badger.DB
	log      *slog.Logger
	sequence *badger.Sequence
}

// NewUserRepository leases user ids from a badger sequence. Leased ids that
// are never handed out are lost on restart, which keeps ids unique forever.
func NewUserRepository(db *badger.DB, log *slog.Logger, bandwidth uint64) (*UserRepository, error) {
	seq, err := db.GetSequence([]byte(userSequenceKey), bandwidth)
	if err != nil {
		return nil, fmt.Errorf("user sequence: %w", err)
	}
	return &UserRepository{db: db, log: log, sequence: seq}, nil
}

// CreateUser persists a user under both its name and its id.
// It fails with ErrDuplicateUsername when the name is already taken, the
// existing record being left untouched.
func (u *UserRepository) CreateUser(username, passwordHash string) (domain.UserID, error) {
	next, err := u.sequence.Next()
	if err != nil {
		return 0, err
	}
	// Sequences start at zero, ids at one so that zero stays "no user".
	id := domain.UserID(next + 1)
	user := domain.User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	data := encodeUser(user)

	err = update(u.db, func(txn *badger.Txn) error {
		taken, err := exists(txn, userNameKey(username))
		if err != nil {
			return err
		}
		if taken {
			return errors.ErrDuplicateUsername
		}
		if err := txn.Set(userNameKey(username), []byte(id.String())); err != nil {
			return err
		}
		return txn.Set(userIDKey(id), data)
	})
	if err != nil {
		return 0, err
	}
	u.log.Debug("User created", "user_id", id, "username", username)
	return id, nil
}

func (u *UserRepository) GetUserByName(username string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		id, err := getUint(txn, userNameKey(username))
		if err != nil {
			return err
		}
		if id == 0 {
			return errors.ErrUserNotFound
		}
		user, err = getUser(txn, domain.UserID(id))
		return err
	})
	return user, err
}

func (u *UserRepository) GetUser(id domain.UserID) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

func (u *UserRepository) SetActive(id domain.UserID, active bool) error {
	return update(u.db, func(txn *badger.Txn) error {
		user, err := getUser(txn, id)
		if err != nil {
			return err
		}
		if user.Active == active {
			return nil
		}
		user.Active = active
		return txn.Set(userIDKey(id), encodeUser(user))
	})
}

// Close returns the unused part of the leased id range.
func (u *UserRepository) Close() error {
	return u.sequence.Release()
}

func getUser(txn *badger.Txn, id domain.UserID) (domain.User, error) {
	item, err := txn.Get(userIDKey(id))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err = item.Value(func(val []byte) error {
		user, err = decodeUser(val)
		return err
	})
	return user, err
}
