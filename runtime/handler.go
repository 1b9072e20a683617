package runtime

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"groupchat/contract"
	"groupchat/domain"
	"groupchat/errors"
	"groupchat/protocol"

	"github.com/samber/lo"
)

// Handler turns the frames of an Active session into service calls.
type Handler struct {
	chat contract.IChatService
	log  *slog.Logger
	now  func() time.Time
}

func NewHandler(chat contract.IChatService, log *slog.Logger) *Handler {
	return &Handler{chat: chat, log: log, now: time.Now}
}

// Serve runs the read loop of an Active session until the peer leaves, logs
// out, or the session is closed from elsewhere.
func (h *Handler) Serve(ctx context.Context, s *Session) {
	for {
		frame, err := s.ReadFrame()
		if goerrors.Is(err, errors.ErrInvalidFrame) {
			_ = s.Reply(errorFrame("", err))
			continue
		}
		if err != nil {
			h.log.Debug("Read loop ended", "session_id", s.ID, "user_id", s.UserID(), "error", err)
			return
		}
		if !s.Allow() {
			_ = s.Reply(errorFrame(frame.Ref, errors.ErrRateLimited))
			continue
		}
		if frame.Type == protocol.TypeLogout {
			_ = s.Reply(protocol.OK(frame.Ref))
			s.Close()
			return
		}
		if err := s.Reply(h.Handle(ctx, s.UserID(), s.Username(), frame)); err != nil {
			return
		}
	}
}

// Handle executes one request frame on behalf of an authenticated user and
// returns the response frame.
func (h *Handler) Handle(ctx context.Context, userID domain.UserID, username string, frame protocol.Frame) protocol.Frame {
	switch frame.Type {
	case protocol.TypePing:
		return protocol.Frame{Type: protocol.TypePong, Ref: frame.Ref}

	case protocol.TypeCreateGroup:
		group, err := h.chat.CreateGroup(ctx, userID, domain.CreateGroupCommand{Name: frame.GroupName})
		if err != nil {
			return errorFrame(frame.Ref, err)
		}
		reply := protocol.OK(frame.Ref)
		reply.GroupID = uint64(group.ID)
		reply.GroupName = group.Name
		return reply

	case protocol.TypeJoin:
		if err := h.chat.JoinGroup(ctx, domain.GroupID(frame.GroupID), userID); err != nil {
			return errorFrame(frame.Ref, err)
		}
		reply := protocol.OK(frame.Ref)
		reply.GroupID = frame.GroupID
		return reply

	case protocol.TypeLeave:
		if err := h.chat.LeaveGroup(ctx, domain.GroupID(frame.GroupID), userID); err != nil {
			return errorFrame(frame.Ref, err)
		}
		reply := protocol.OK(frame.Ref)
		reply.GroupID = frame.GroupID
		return reply

	case protocol.TypeSend:
		message, err := h.chat.SendGroupMessage(ctx, domain.SendMessageCommand{
			SenderID:   userID,
			SenderName: username,
			GroupID:    domain.GroupID(frame.GroupID),
			Content:    frame.Content,
			FilePath:   frame.FilePath,
			MimeType:   frame.MimeType,
			SentAt:     h.now(),
		})
		if err != nil {
			return errorFrame(frame.Ref, err)
		}
		reply := protocol.OK(frame.Ref)
		reply.GroupID = uint64(message.GroupID)
		reply.MessageID = message.ID.String()
		reply.Seq = message.Seq
		return reply

	case protocol.TypeHistory:
		entries, err := h.chat.History(ctx, userID, domain.HistoryQuery{
			GroupID: domain.GroupID(frame.GroupID),
			Before:  frame.Before,
			Limit:   frame.Limit,
		})
		if err != nil {
			return errorFrame(frame.Ref, err)
		}
		return protocol.Frame{
			Type:     protocol.TypeHistory,
			Ref:      frame.Ref,
			GroupID:  frame.GroupID,
			Messages: lo.Map(entries, func(e domain.HistoryEntry, _ int) protocol.MessageView { return protocol.ToMessageView(e) }),
		}

	case protocol.TypeGroups:
		groups, err := h.chat.UserGroups(ctx, userID)
		if err != nil {
			return errorFrame(frame.Ref, err)
		}
		return protocol.Frame{
			Type: protocol.TypeGroups,
			Ref:  frame.Ref,
			Groups: lo.Map(groups, func(g domain.Group, _ int) protocol.GroupView {
				return protocol.GroupView{ID: uint64(g.ID), Name: g.Name}
			}),
		}

	case protocol.TypeLogin, protocol.TypeRegister, protocol.TypeResume:
		return errorFrame(frame.Ref, fmt.Errorf("%w: already authenticated", errors.ErrInvalidFrame))

	default:
		h.log.Debug("Unknown frame type", "type", frame.Type, "user_id", userID)
		return errorFrame(frame.Ref, errors.ErrInvalidFrame)
	}
}

func errorFrame(ref string, err error) protocol.Frame {
	return protocol.Error(ref, errors.Code(err).String(), err)
}
