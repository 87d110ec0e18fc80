// Package outbox delivers notifications recorded alongside order changes.
// Messages are written in the same transaction as the change and sent
// after commit, so a failed email or publish never rolls an order back.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"ms-registration/internal/models"

	"github.com/google/uuid"
)

// NewEmail builds a pending email message.
func NewEmail(toAddr, subject, body string) *models.OutboxMessage {
	return &models.OutboxMessage{
		ID:        uuid.NewString(),
		Kind:      models.OutboxKindEmail,
		ToAddr:    toAddr,
		Subject:   subject,
		Body:      body,
		Status:    models.OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// NewEvent builds a pending event message with payload encoded as JSON.
func NewEvent(topic, key string, payload interface{}) (*models.OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return &models.OutboxMessage{
		ID:        uuid.NewString(),
		Kind:      models.OutboxKindEvent,
		Topic:     topic,
		Key:       key,
		Payload:   string(data),
		Status:    models.OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}
