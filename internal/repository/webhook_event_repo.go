package repository

import (
	"errors"
	"strings"
	"time"

	"dealdesk/internal/models"

	"gorm.io/gorm"
)

// ErrEventSeen signals a replayed webhook delivery: the event id was already
// recorded, so its effects must not be applied again.
var ErrEventSeen = errors.New("webhook event already processed")

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Claim inserts the (provider, event id) pair. The unique index turns a
// replay into a duplicate-key error, reported as ErrEventSeen.
func (r *WebhookEventRepository) Claim(provider, eventID, eventType string) (*models.WebhookEvent, error) {
	ev := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       eventType,
	}
	err := r.db.Create(ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKey(err) {
			return nil, ErrEventSeen
		}
		return nil, err
	}
	return ev, nil
}

func (r *WebhookEventRepository) MarkProcessed(ev *models.WebhookEvent) error {
	now := time.Now()
	ev.ProcessedAt = &now
	return r.db.Model(ev).Update("processed_at", now).Error
}

func (r *WebhookEventRepository) MarkFailed(ev *models.WebhookEvent, procErr error) error {
	ev.ProcessingError = procErr.Error()
	return r.db.Model(ev).Update("processing_error", ev.ProcessingError).Error
}

// isDuplicateKey covers drivers that do not translate duplicate-key errors
// into gorm.ErrDuplicatedKey.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
