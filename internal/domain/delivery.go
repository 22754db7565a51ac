package domain

import (
	"fmt"
	"time"
)

// DeliveryStatus represents the status of a spooled event delivery
type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
	DeliveryStatusFailed     DeliveryStatus = "failed"
)

// Delivery is a channel delivery that failed during dispatch and is queued
// for another attempt. Payload is the JSON-encoded LifecycleEvent.
type Delivery struct {
	ID          string
	Channel     string
	EventName   EventName
	Payload     []byte
	Status      DeliveryStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// ValidateDelivery validates a Delivery instance
func ValidateDelivery(d *Delivery) error {
	if d == nil {
		return fmt.Errorf("delivery cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("delivery ID is required")
	}

	if d.Channel == "" {
		return fmt.Errorf("delivery Channel is required")
	}

	if len(d.Payload) == 0 {
		return fmt.Errorf("delivery Payload is required")
	}

	if !isValidDeliveryStatus(d.Status) {
		return fmt.Errorf("delivery Status is invalid: %s", d.Status)
	}

	if d.Retries < 0 {
		return fmt.Errorf("delivery Retries cannot be negative")
	}

	return nil
}

func isValidDeliveryStatus(s DeliveryStatus) bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusProcessing,
		DeliveryStatusDelivered, DeliveryStatusFailed:
		return true
	}
	return false
}
