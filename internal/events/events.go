// Package events defines the catalog change notifications published to NATS.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ProductCreatedSubject       = "catalog.products.created"
	ProductDeletedSubject       = "catalog.products.deleted"
	ProductImageAttachedSubject = "catalog.products.image_attached"

	// StreamSubjects matches every catalog subject.
	StreamSubjects = "catalog.products.>"
)

type ProductCreatedEvent struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (e ProductCreatedEvent) Subject() string {
	return ProductCreatedSubject
}

func (e ProductCreatedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}

// ProductDeletedEvent is published after a product record is removed.
// Consumers holding references to the product clean them up on receipt.
type ProductDeletedEvent struct {
	ProductID uuid.UUID `json:"product_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

func (e ProductDeletedEvent) Subject() string {
	return ProductDeletedSubject
}

func (e ProductDeletedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}

type ProductImageAttachedEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	ImageLink  string    `json:"image_link"`
	AttachedAt time.Time `json:"attached_at"`
}

func (e ProductImageAttachedEvent) Subject() string {
	return ProductImageAttachedSubject
}

func (e ProductImageAttachedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
