package repositories

import (
	goerrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"groupchat/domain"
	"groupchat/errors"

	"github.com/dgraph-io/badger/v4"
)

type IGroupRepository interface {
	CreateGroup(name string) (domain.GroupID, error)
	GetGroup(id domain.GroupID) (domain.Group, error)
	GetGroupByName(name string) (domain.Group, error)
	AddMember(groupID domain.GroupID, userID domain.UserID) error
	RemoveMember(groupID domain.GroupID, userID domain.UserID) error
	Members(groupID domain.GroupID) (domain.UserSet, error)
	UserGroups(userID domain.UserID) ([]domain.Group, error)
	Close() error
}

type GroupRepository struct {
	db       *badger.DB
	log      *slog.Logger
	sequence *badger.Sequence
}

func NewGroupRepository(db *badger.DB, log *slog.Logger, bandwidth uint64) (*GroupRepository, error) {
	seq, err := db.GetSequence([]byte(groupSequenceKey), bandwidth)
	if err != nil {
		return nil, fmt.Errorf("group sequence: %w", err)
	}
	return &GroupRepository{db: db, log: log, sequence: seq}, nil
}

// CreateGroup stores a new empty group. The name must already be validated.
func (g *GroupRepository) CreateGroup(name string) (domain.GroupID, error) {
	next, err := g.sequence.Next()
	if err != nil {
		return 0, err
	}
	id := domain.GroupID(next + 1)
	data := encodeGroup(domain.Group{ID: id, Name: name, CreatedAt: time.Now().UTC()})

	err = update(g.db, func(txn *badger.Txn) error {
		taken, err := exists(txn, groupNameKey(name))
		if err != nil {
			return err
		}
		if taken {
			return errors.ErrDuplicateGroupName
		}
		if err := txn.Set(groupNameKey(name), []byte(id.String())); err != nil {
			return err
		}
		return txn.Set(groupIDKey(id), data)
	})
	if err != nil {
		return 0, err
	}
	g.log.Debug("Group created", "group_id", id, "name", name)
	return id, nil
}

func (g *GroupRepository) GetGroup(id domain.GroupID) (domain.Group, error) {
	var group domain.Group
	err := g.db.View(func(txn *badger.Txn) error {
		var err error
		group, err = getGroup(txn, id)
		return err
	})
	return group, err
}

func (g *GroupRepository) GetGroupByName(name string) (domain.Group, error) {
	var group domain.Group
	err := g.db.View(func(txn *badger.Txn) error {
		id, err := getUint(txn, groupNameKey(name))
		if err != nil {
			return err
		}
		if id == 0 {
			return errors.ErrGroupNotFound
		}
		group, err = getGroup(txn, domain.GroupID(id))
		return err
	})
	return group, err
}

// AddMember writes both directions of the membership in one transaction.
func (g *GroupRepository) AddMember(groupID domain.GroupID, userID domain.UserID) error {
	return update(g.db, func(txn *badger.Txn) error {
		if _, err := getGroup(txn, groupID); err != nil {
			return err
		}
		if _, err := getUser(txn, userID); err != nil {
			return err
		}
		member, err := exists(txn, memberKey(groupID, userID))
		if err != nil {
			return err
		}
		if member {
			return errors.ErrAlreadyMember
		}
		if err := txn.Set(memberKey(groupID, userID), nil); err != nil {
			return err
		}
		return txn.Set(membershipKey(userID, groupID), nil)
	})
}

// RemoveMember is idempotent: removing a non-member succeeds.
func (g *GroupRepository) RemoveMember(groupID domain.GroupID, userID domain.UserID) error {
	return update(g.db, func(txn *badger.Txn) error {
		if err := txn.Delete(memberKey(groupID, userID)); err != nil {
			return err
		}
		return txn.Delete(membershipKey(userID, groupID))
	})
}

// Members scans the member keys of a group. Keys only, values are empty.
func (g *GroupRepository) Members(groupID domain.GroupID) (domain.UserSet, error) {
	members := domain.NewUserSet()
	err := g.db.View(func(txn *badger.Txn) error {
		if _, err := getGroup(txn, groupID); err != nil {
			return err
		}
		prefix := memberPrefix(groupID)
		return scanIDs(txn, prefix, func(id uint64) {
			members[domain.UserID(id)] = struct{}{}
		})
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (g *GroupRepository) UserGroups(userID domain.UserID) ([]domain.Group, error) {
	var groups []domain.Group
	err := g.db.View(func(txn *badger.Txn) error {
		var ids []domain.GroupID
		err := scanIDs(txn, membershipPrefix(userID), func(id uint64) {
			ids = append(ids, domain.GroupID(id))
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			group, err := getGroup(txn, id)
			if err != nil {
				return err
			}
			groups = append(groups, group)
		}
		return nil
	})
	return groups, err
}

func (g *GroupRepository) Close() error {
	return g.sequence.Release()
}

func getGroup(txn *badger.Txn, id domain.GroupID) (domain.Group, error) {
	item, err := txn.Get(groupIDKey(id))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Group{}, errors.ErrGroupNotFound
	}
	if err != nil {
		return domain.Group{}, err
	}
	var group domain.Group
	err = item.Value(func(val []byte) error {
		group, err = decodeGroup(val)
		return err
	})
	return group, err
}

// scanIDs iterates keys of the form {prefix}{id} and parses the id suffix.
func scanIDs(txn *badger.Txn, prefix []byte, fn func(id uint64)) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		suffix := it.Item().Key()[len(prefix):]
		id, err := strconv.ParseUint(string(suffix), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: key %q", errors.ErrInvalidRecord, it.Item().Key())
		}
		fn(id)
	}
	return nil
}
