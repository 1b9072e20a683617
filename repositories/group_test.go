package repositories

import (
	"testing"

	"groupchat/domain"
	"groupchat/errors"

	"github.com/stretchr/testify/require"
)

func TestGroupRepository_CreateAndDuplicate(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	id, err := f.groups.CreateGroup("general")
	req.NoError(err)

	_, err = f.groups.CreateGroup("general")
	req.ErrorIs(err, errors.ErrDuplicateGroupName)

	group, err := f.groups.GetGroupByName("general")
	req.NoError(err)
	req.Equal(id, group.ID)

	group, err = f.groups.GetGroup(id)
	req.NoError(err)
	req.Equal("general", group.Name)

	// A new group has no member
	members, err := f.groups.Members(id)
	req.NoError(err)
	req.Empty(members)
}

func TestGroupRepository_Membership(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice, err := f.users.CreateUser("alice", "hash")
	req.NoError(err)
	bob, err := f.users.CreateUser("bob", "hash")
	req.NoError(err)
	general, err := f.groups.CreateGroup("general")
	req.NoError(err)
	random, err := f.groups.CreateGroup("random")
	req.NoError(err)

	// When both join general and alice joins random
	req.NoError(f.groups.AddMember(general, alice))
	req.NoError(f.groups.AddMember(general, bob))
	req.NoError(f.groups.AddMember(random, alice))

	// Then a second join is rejected
	req.ErrorIs(f.groups.AddMember(general, alice), errors.ErrAlreadyMember)

	members, err := f.groups.Members(general)
	req.NoError(err)
	req.Equal(domain.NewUserSet(alice, bob), members)

	groups, err := f.groups.UserGroups(alice)
	req.NoError(err)
	req.Len(groups, 2)
	req.Equal("general", groups[0].Name)
	req.Equal("random", groups[1].Name)

	// When alice leaves twice, the second leave is a no-op
	req.NoError(f.groups.RemoveMember(general, alice))
	req.NoError(f.groups.RemoveMember(general, alice))

	members, err = f.groups.Members(general)
	req.NoError(err)
	req.Equal(domain.NewUserSet(bob), members)
}

func TestGroupRepository_AddMember_Unknown(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice, err := f.users.CreateUser("alice", "hash")
	req.NoError(err)
	general, err := f.groups.CreateGroup("general")
	req.NoError(err)

	req.ErrorIs(f.groups.AddMember(general+10, alice), errors.ErrGroupNotFound)
	req.ErrorIs(f.groups.AddMember(general, alice+10), errors.ErrUserNotFound)

	_, err = f.groups.Members(general + 10)
	req.ErrorIs(err, errors.ErrGroupNotFound)
}
