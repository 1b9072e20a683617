package runtime

import (
	"log/slog"

	"groupchat/domain"
	"groupchat/protocol"
)

// Router fans persisted messages out to connected group members.
type Router struct {
	registry *Registry
	log      *slog.Logger
}

func NewRouter(registry *Registry, log *slog.Logger) *Router {
	return &Router{registry: registry, log: log}
}

// Broadcast delivers the message to every online member except its sender,
// who is acknowledged separately. A member whose delivery fails is removed
// from the registry and closed; the others are unaffected.
// It returns the number of sessions the message was enqueued to.
func (r *Router) Broadcast(entry domain.HistoryEntry, members domain.UserSet) int {
	recipients := r.registry.Snapshot(members.Without(entry.SenderID))
	if len(recipients) == 0 {
		return 0
	}
	frame, err := protocol.Encode(protocol.FromMessage(entry.Message, entry.Username))
	if err != nil {
		r.log.Error("Encoding broadcast frame", "error", err, "message_id", entry.ID)
		return 0
	}

	delivered := 0
	for _, session := range recipients {
		if err := session.Deliver(frame); err != nil {
			r.log.Warn("Delivery failed, dropping session",
				"user_id", session.UserID(),
				"session_id", session.ID,
				"group_id", entry.GroupID,
				"error", err)
			r.registry.Remove(session)
			session.Close()
			continue
		}
		delivered++
	}
	return delivered
}
