// Package reactions applies optimistic emoji reaction changes to the
// message window and mirrors them to the backend.
package reactions

import (
	"context"
	"fmt"
	"log"
	"strings"

	"chat-engine/internal/errs"
	"chat-engine/internal/models"
)

// Backend posts reaction changes.
type Backend interface {
	PostReaction(ctx context.Context, messageID, emoji string, action models.ReactionAction) error
}

// Summaries is the owner of message reaction summaries.
type Summaries interface {
	UpdateReactions(messageID string, fn func(summary map[string]int) bool) (models.Message, error)
}

// Aggregator maintains emoji -> count summaries with optimistic updates.
type Aggregator struct {
	backend Backend
	store   Summaries
}

func New(backend Backend, store Summaries) *Aggregator {
	return &Aggregator{backend: backend, store: store}
}

// Add increments the emoji count, creating it at 1, then posts the change.
// A failed post reverts the increment.
func (a *Aggregator) Add(ctx context.Context, messageID, emoji string) (models.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return models.Message{}, fmt.Errorf("%w: empty emoji", errs.ErrValidation)
	}
	msg, err := a.store.UpdateReactions(messageID, func(summary map[string]int) bool {
		summary[emoji]++
		return true
	})
	if err != nil {
		return models.Message{}, err
	}

	if err := a.backend.PostReaction(ctx, messageID, emoji, models.ReactionAdd); err != nil {
		log.Printf("add reaction failed, reverting message_id=%s emoji=%s err=%v", messageID, emoji, err)
		reverted, _ := a.store.UpdateReactions(messageID, func(summary map[string]int) bool {
			return decrement(summary, emoji)
		})
		return reverted, errs.Transport("add reaction", err)
	}
	return msg, nil
}

// Remove decrements the emoji count, dropping it at zero, then posts the
// change. Removing an emoji that has no count is a no-op with no remote
// call.
func (a *Aggregator) Remove(ctx context.Context, messageID, emoji string) (models.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return models.Message{}, fmt.Errorf("%w: empty emoji", errs.ErrValidation)
	}
	removed := false
	msg, err := a.store.UpdateReactions(messageID, func(summary map[string]int) bool {
		removed = decrement(summary, emoji)
		return removed
	})
	if err != nil || !removed {
		return msg, err
	}

	if err := a.backend.PostReaction(ctx, messageID, emoji, models.ReactionRemove); err != nil {
		log.Printf("remove reaction failed, reverting message_id=%s emoji=%s err=%v", messageID, emoji, err)
		reverted, _ := a.store.UpdateReactions(messageID, func(summary map[string]int) bool {
			summary[emoji]++
			return true
		})
		return reverted, errs.Transport("remove reaction", err)
	}
	return msg, nil
}

func decrement(summary map[string]int, emoji string) bool {
	n, ok := summary[emoji]
	if !ok || n <= 0 {
		delete(summary, emoji)
		return false
	}
	if n == 1 {
		delete(summary, emoji)
	} else {
		summary[emoji] = n - 1
	}
	return true
}
