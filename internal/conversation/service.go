// Package conversation is the CRUD-plus-state-machine service for
// consultation sessions: create, append messages, archive, and a
// background sweep that times out long-idle sessions.
package conversation

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/idgen"
	"github.com/consultd/consultd/internal/model"
)

const staleAfter = 5 * time.Minute

// Backend is the subset of store.Store the service needs.
type Backend interface {
	CreateConversation(ctx context.Context, id, modelName, systemPrompt string, now time.Time) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error)
	AddMessage(ctx context.Context, convID string, role model.MessageRole, content string, maxMessages int, now time.Time) (*model.Message, int, error)
	ArchiveConversation(ctx context.Context, id string, reason model.EndReason, now time.Time) (bool, error)
	SweepStale(ctx context.Context, cutoff, now time.Time) ([]string, error)
	DeleteConversation(ctx context.Context, id string) error
	DeleteAllArchived(ctx context.Context) (int64, error)
}

// Notifier broadcasts conversation lifecycle events.
type Notifier interface {
	ConversationCreated(conv *model.Conversation)
	ConversationMessage(conversationID string, msg *model.Message)
	ConversationEnded(conversationID string, reason model.EndReason)
	ConversationDeleted(conversationID string)
}

// Service implements the conversation operations from spec.md §4.E.
type Service struct {
	store  Backend
	notify Notifier
	log    *logrus.Entry
}

// New builds a Service. notify may be nil.
func New(store Backend, notify Notifier, log *logrus.Entry) *Service {
	return &Service{store: store, notify: notify, log: log}
}

// Create starts a new active conversation with an empty message list.
func (s *Service) Create(ctx context.Context, modelName, systemPrompt string) (*model.Conversation, error) {
	id := idgen.NewConversationID()
	conv, err := s.store.CreateConversation(ctx, id, modelName, systemPrompt, time.Now())
	if err != nil {
		return nil, err
	}
	if s.notify != nil {
		s.notify.ConversationCreated(conv)
	}
	return conv, nil
}

// Get loads a conversation with its messages in ascending ordinal order.
func (s *Service) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// ListActive returns every conversation currently in the active state.
func (s *Service) ListActive(ctx context.Context) ([]model.Conversation, error) {
	return s.store.ListConversations(ctx, model.ConversationActive)
}

// ListArchived returns every archived conversation.
func (s *Service) ListArchived(ctx context.Context) ([]model.Conversation, error) {
	return s.store.ListConversations(ctx, model.ConversationArchived)
}

// AddMessage appends a message and bumps updatedAt. If the cap is
// reached, the conversation is auto-archived as timeout and
// LIMIT_EXCEEDED is returned, per spec.md §7.
func (s *Service) AddMessage(ctx context.Context, id string, role model.MessageRole, content string, maxMessages int) (*model.Message, int, error) {
	msg, count, err := s.store.AddMessage(ctx, id, role, content, maxMessages, time.Now())
	if err != nil {
		if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.LimitExceeded {
			if _, archiveErr := s.store.ArchiveConversation(ctx, id, model.EndReasonTimeout, time.Now()); archiveErr == nil {
				if s.notify != nil {
					s.notify.ConversationEnded(id, model.EndReasonTimeout)
				}
			}
		}
		return nil, count, err
	}

	if s.notify != nil {
		s.notify.ConversationMessage(id, msg)
	}
	return msg, count, nil
}

// Archive transitions a conversation to archived, idempotently.
func (s *Service) Archive(ctx context.Context, id string, reason model.EndReason) (bool, error) {
	changed, err := s.store.ArchiveConversation(ctx, id, reason, time.Now())
	if err != nil {
		return false, err
	}
	if changed && s.notify != nil {
		s.notify.ConversationEnded(id, reason)
	}
	return changed, nil
}

// Delete hard-deletes a single conversation.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return err
	}
	if s.notify != nil {
		s.notify.ConversationDeleted(id)
	}
	return nil
}

// DeleteAllArchived hard-deletes every archived conversation.
func (s *Service) DeleteAllArchived(ctx context.Context) (int64, error) {
	return s.store.DeleteAllArchived(ctx)
}

// SweepOnce archives every active conversation idle for more than
// staleAfter and notifies for each. Called on a ticker and once at
// startup.
func (s *Service) SweepOnce(ctx context.Context) error {
	now := time.Now()
	ids, err := s.store.SweepStale(ctx, now.Add(-staleAfter), now)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if s.notify != nil {
			s.notify.ConversationEnded(id, model.EndReasonTimeout)
		}
	}
	if len(ids) > 0 {
		s.log.WithField("count", len(ids)).Info("stale sweep archived conversations")
	}
	return nil
}

// RunSweeper ticks SweepOnce every interval until ctx is canceled. A
// sweep error is logged and swallowed rather than returned: a transient
// store error on one sweep must not take down the supervising errgroup
// and, with it, every other stage including active client connections
// (spec.md §7).
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	s.sweepLogged(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepLogged(ctx)
		}
	}
}

func (s *Service) sweepLogged(ctx context.Context) {
	if err := s.SweepOnce(ctx); err != nil && s.log != nil {
		s.log.WithError(err).Warn("stale sweep failed, will retry next tick")
	}
}
