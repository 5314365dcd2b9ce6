// Package conversation persists chat history and keeps the LLM context
// window bounded. Appends to one conversation are serialized, reads are
// not.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationArchived = errors.New("conversation is archived")
)

const (
	defaultArchiveAfter    = 24 * time.Hour
	defaultArchiveInterval = time.Hour
)

// Store wraps conversation and message persistence. A per-conversation
// mutex serializes appends so interleaved rounds never reorder history.
type Store struct {
	db              *gorm.DB
	archiveAfter    time.Duration
	archiveInterval time.Duration

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewStore builds a store. Zero durations fall back to the defaults.
func NewStore(db *gorm.DB, archiveAfter, archiveInterval time.Duration) *Store {
	if archiveAfter <= 0 {
		archiveAfter = defaultArchiveAfter
	}
	if archiveInterval <= 0 {
		archiveInterval = defaultArchiveInterval
	}
	return &Store{
		db:              db,
		archiveAfter:    archiveAfter,
		archiveInterval: archiveInterval,
		locks:           make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Store) lockFor(conversationID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[conversationID] = lock
	}
	return lock
}

// Create starts a new conversation for a user
func (s *Store) Create(userID uuid.UUID, title, model string) (*models.Conversation, error) {
	conv := &models.Conversation{
		UserID: userID,
		Title:  title,
		Model:  model,
	}
	if err := s.db.Create(conv).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return conv, nil
}

// Get fetches one conversation scoped to its owner
func (s *Store) Get(userID, conversationID uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.First(&conv, "id = ? AND user_id = ?", conversationID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, errors.Wrap(err, "failed to load conversation")
	}
	return &conv, nil
}

// List returns a user's conversations, newest activity first. Archived
// conversations are excluded unless asked for.
func (s *Store) List(userID uuid.UUID, includeArchived bool) ([]models.ConversationSummary, error) {
	query := s.db.Model(&models.Conversation{}).
		Select("conversations.*, (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = conversations.id) AS message_count").
		Where("user_id = ?", userID).
		Order("last_activity_at DESC")
	if !includeArchived {
		query = query.Where("archived = ?", false)
	}

	var summaries []models.ConversationSummary
	if err := query.Find(&summaries).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	return summaries, nil
}

// UpdateTitle renames a conversation
func (s *Store) UpdateTitle(userID, conversationID uuid.UUID, title string) error {
	result := s.db.Model(&models.Conversation{}).
		Where("id = ? AND user_id = ?", conversationID, userID).
		Update("title", title)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update conversation title")
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Delete removes a conversation and its messages
func (s *Store) Delete(userID, conversationID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", conversationID, userID).
			Delete(&models.Conversation{})
		if result.Error != nil {
			return errors.Wrap(result.Error, "failed to delete conversation")
		}
		if result.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		err := tx.Where("conversation_id = ?", conversationID).
			Delete(&models.Message{}).Error
		return errors.Wrap(err, "failed to delete conversation messages")
	})
}

// Append persists messages in order and bumps the conversation's
// activity clock. Concurrent appends to the same conversation queue up
// behind each other. Archived conversations no longer accept messages.
func (s *Store) Append(conversationID uuid.UUID, messages ...*models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Select("archived").First(&conv, "id = ?", conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return errors.Wrap(err, "failed to load conversation")
		}
		if conv.Archived {
			return ErrConversationArchived
		}

		for _, msg := range messages {
			msg.ConversationID = conversationID
			if err := tx.Create(msg).Error; err != nil {
				return errors.Wrap(err, "failed to append message")
			}
		}
		err := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("last_activity_at", time.Now().UTC()).Error
		return errors.Wrap(err, "failed to bump conversation activity")
	})
}

// Messages returns the full history of a conversation in order
func (s *Store) Messages(conversationID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load messages")
	}
	return msgs, nil
}

// MessagePage returns one page of a conversation's history in order,
// along with the total message count for the pagination envelope
func (s *Store) MessagePage(conversationID uuid.UUID, limit, offset int) ([]models.Message, int64, error) {
	var total int64
	err := s.db.Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to count messages")
	}

	var msgs []models.Message
	err = s.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to load messages")
	}
	return msgs, total, nil
}

// ActiveMessages returns the history with summarized rows folded away,
// which is exactly what the context window consumes
func (s *Store) ActiveMessages(conversationID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Where("conversation_id = ? AND summarized = ?", conversationID, false).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load active messages")
	}
	return msgs, nil
}

// MarkSummarized flags rows as folded into a summary so the window
// skips them from now on
func (s *Store) MarkSummarized(messageIDs []uuid.UUID) error {
	if len(messageIDs) == 0 {
		return nil
	}
	err := s.db.Model(&models.Message{}).
		Where("id IN ?", messageIDs).
		Update("summarized", true).Error
	return errors.Wrap(err, "failed to mark messages summarized")
}

// StartArchiver flags idle conversations as archived in the background
// until the context is canceled
func (s *Store) StartArchiver(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.archiveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.archiveIdle()
			}
		}
	}()
}

func (s *Store) archiveIdle() {
	cutoff := time.Now().UTC().Add(-s.archiveAfter)
	result := s.db.Model(&models.Conversation{}).
		Where("archived = ? AND last_activity_at < ?", false, cutoff).
		Update("archived", true)
	if result.Error != nil {
		logging.LogErrorf(result.Error, "Conversation archival sweep failed")
		return
	}
	if result.RowsAffected > 0 {
		logging.LogInfof("Archived %d idle conversations", result.RowsAffected)
	}
}
