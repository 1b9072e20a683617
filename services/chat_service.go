package services

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"groupchat/contract"
	"groupchat/domain"
	"groupchat/domain/mimetypes"
	"groupchat/errors"
	"groupchat/moderation"
	"groupchat/runtime"

	"github.com/gabriel-vasile/mimetype"
)

type ChatConfig struct {
	MaxContentLength int
	HistoryLimit     int
}

type ChatService struct {
	store       contract.IStore
	directory   contract.IDirectory
	broadcaster contract.IBroadcaster
	sequencer   *runtime.Sequencer
	moderator   *moderation.Moderator
	cfg         ChatConfig
	log         *slog.Logger
}

func NewChatService(
	store contract.IStore,
	directory contract.IDirectory,
	broadcaster contract.IBroadcaster,
	sequencer *runtime.Sequencer,
	moderator *moderation.Moderator,
	cfg ChatConfig,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		store:       store,
		directory:   directory,
		broadcaster: broadcaster,
		sequencer:   sequencer,
		moderator:   moderator,
		cfg:         cfg,
		log:         log,
	}
}

// SendGroupMessage checks membership, persists, then fans the message out.
//
// The group lock is held from the membership check to the end of the fan-out,
// so recipients see the messages of a group in sequence order. Enqueueing never
// blocks, which keeps the critical section independent of slow peers.
// Once persisted the message is returned even if no recipient could be reached.
func (s *ChatService) SendGroupMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	if s.cfg.MaxContentLength > 0 && utf8.RuneCountInString(cmd.Content) > s.cfg.MaxContentLength {
		return domain.Message{}, fmt.Errorf("%w: content longer than %d characters", errors.ErrInvalidMessage, s.cfg.MaxContentLength)
	}

	file := s.fileRef(cmd.FilePath, cmd.MimeType)

	unlock := s.sequencer.Lock(cmd.GroupID)
	defer unlock()

	member, err := s.directory.IsMember(ctx, cmd.GroupID, cmd.SenderID)
	if err != nil {
		return domain.Message{}, err
	}
	if !member {
		return domain.Message{}, errors.ErrNotMember
	}

	content, words := s.moderator.Censor(cmd.Content)
	if len(words) > 0 {
		s.log.Info("Message censored", "user_id", cmd.SenderID, "group_id", cmd.GroupID, "words", len(words))
	}

	message, err := s.store.PersistMessage(ctx, domain.NewMessage{
		SenderID: cmd.SenderID,
		GroupID:  cmd.GroupID,
		Content:  content,
		File:     file,
		SentAt:   cmd.SentAt,
	})
	if err != nil {
		return domain.Message{}, err
	}

	members, err := s.directory.Members(ctx, cmd.GroupID)
	if err != nil {
		s.log.Warn("Message persisted but members unavailable, skipping fan-out",
			"group_id", cmd.GroupID, "message_id", message.ID, "error", err)
		return message, nil
	}
	delivered := s.broadcaster.Broadcast(domain.HistoryEntry{Message: message, Username: cmd.SenderName}, members)
	s.log.Debug("Message sent", "group_id", cmd.GroupID, "seq", message.Seq, "delivered", delivered)
	return message, nil
}

// CreateGroup creates an empty group. The creator is not joined implicitly.
func (s *ChatService) CreateGroup(ctx context.Context, creator domain.UserID, cmd domain.CreateGroupCommand) (domain.Group, error) {
	groupID, err := s.store.CreateGroup(ctx, cmd.Name)
	if err != nil {
		return domain.Group{}, err
	}
	s.log.Info("Group created", "group_id", groupID, "creator", creator)
	return s.store.Group(ctx, groupID)
}

func (s *ChatService) JoinGroup(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	if err := s.directory.Join(ctx, groupID, userID); err != nil {
		return err
	}
	s.log.Info("Member joined", "group_id", groupID, "user_id", userID)
	return nil
}

func (s *ChatService) LeaveGroup(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	if err := s.directory.Leave(ctx, groupID, userID); err != nil {
		return err
	}
	s.log.Info("Member left", "group_id", groupID, "user_id", userID)
	return nil
}

// History is reserved to members. The limit is clamped to the configured maximum.
func (s *ChatService) History(ctx context.Context, userID domain.UserID, query domain.HistoryQuery) ([]domain.HistoryEntry, error) {
	if err := validate.Struct(query); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	member, err := s.directory.IsMember(ctx, query.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, errors.ErrNotMember
	}
	if query.Limit <= 0 || (s.cfg.HistoryLimit > 0 && query.Limit > s.cfg.HistoryLimit) {
		query.Limit = s.cfg.HistoryLimit
	}
	return s.store.History(ctx, query)
}

func (s *ChatService) UserGroups(ctx context.Context, userID domain.UserID) ([]domain.Group, error) {
	return s.store.UserGroups(ctx, userID)
}

// fileRef types a file reference without touching the server filesystem: the
// path names a file on the sender's side. A declared type is kept when it is a
// known media type, otherwise the extension decides.
func (s *ChatService) fileRef(path, declared string) *domain.FileRef {
	if path == "" {
		return nil
	}
	if declared != "" {
		if known := mimetype.Lookup(string(mimetypes.Of(declared))); known != nil {
			return &domain.FileRef{Path: path, MimeType: string(mimetypes.Of(known.String()))}
		}
		s.log.Debug("Unknown declared mime type", "path", path, "mime_type", declared)
	}
	return &domain.FileRef{Path: path, MimeType: string(mimetypes.ByExtension(path))}
}
