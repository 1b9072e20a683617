package repositories

import (
	"fmt"

	"groupchat/domain"
)

// Key layout. Numeric ids are zero padded to 20 digits so that badger's
// lexicographic order matches numeric order.
//
//	user:name:{username}           -> user id
//	user:id:{uid}                  -> user record
//	group:name:{name}              -> group id
//	group:id:{gid}                 -> group record
//	member:{gid}:{uid}             -> empty
//	membership:{uid}:{gid}         -> empty
//	gseq:{gid}                     -> last message sequence of the group
//	msg:{gid}:{seq}                -> message record
//	blacklist:{word}               -> empty
const (
	userSequenceKey  = "seq:user"
	groupSequenceKey = "seq:group"
	maxPadded        = "99999999999999999999"
	blacklistPrefix  = "blacklist:"
)

func userNameKey(username string) []byte {
	return []byte("user:name:" + username)
}

func userIDKey(id domain.UserID) []byte {
	return []byte(fmt.Sprintf("user:id:%020d", id))
}

func groupNameKey(name string) []byte {
	return []byte("group:name:" + name)
}

func groupIDKey(id domain.GroupID) []byte {
	return []byte(fmt.Sprintf("group:id:%020d", id))
}

func memberPrefix(groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("member:%020d:", groupID))
}

func memberKey(groupID domain.GroupID, userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("member:%020d:%020d", groupID, userID))
}

func membershipPrefix(userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("membership:%020d:", userID))
}

func membershipKey(userID domain.UserID, groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("membership:%020d:%020d", userID, groupID))
}

func groupSeqKey(groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("gseq:%020d", groupID))
}

func messagePrefix(groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("msg:%020d:", groupID))
}

func messageKey(groupID domain.GroupID, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%020d:%020d", groupID, seq))
}

func blacklistKey(word string) []byte {
	return []byte(blacklistPrefix + word)
}
