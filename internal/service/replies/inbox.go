package replies

import (
	"context"
	"fmt"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
	"github.com/mathemusician/church-volunteers/internal/util"
)

const DefaultInboxLimit = 50

// Inbox is the coordinator view over stored replies, grouped by sender.
type Inbox struct {
	replies repository.RepliesRepository
}

func NewInbox(replies repository.RepliesRepository) *Inbox {
	return &Inbox{replies: replies}
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultInboxLimit
	}
	return limit
}

// Conversations lists senders newest first. Replies that could not be tied
// to an organization show up for every organization.
func (b *Inbox) Conversations(ctx context.Context, organizationID int64, limit int) ([]model.Conversation, error) {
	out, err := b.replies.Conversations(ctx, &organizationID, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("conversations: %w", err)
	}
	return out, nil
}

// Thread and MarkRead are scoped like Conversations.
func (b *Inbox) Thread(ctx context.Context, organizationID int64, phone string, limit int) ([]model.Reply, error) {
	p, err := util.NormalizePhone(phone)
	if err != nil {
		return nil, model.Invalid("phone", "must be a 10-digit US number")
	}
	out, err := b.replies.Thread(ctx, &organizationID, p, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("thread: %w", err)
	}
	return out, nil
}

func (b *Inbox) MarkRead(ctx context.Context, organizationID int64, phone string) (int64, error) {
	p, err := util.NormalizePhone(phone)
	if err != nil {
		return 0, model.Invalid("phone", "must be a 10-digit US number")
	}
	return b.replies.MarkRead(ctx, &organizationID, p)
}
