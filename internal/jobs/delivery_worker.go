package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/telemetry"
)

const (
	// MaxRetries bounds redelivery attempts for one spooled delivery.
	MaxRetries = 3

	defaultBatchSize = 50
)

// DeliveryRepository is the persistence side of the delivery spool.
type DeliveryRepository interface {
	// ClaimPending moves up to limit pending deliveries to processing.
	ClaimPending(ctx context.Context, limit int) ([]*domain.Delivery, error)
	UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus, errMsg string) error
	IncrementRetries(ctx context.Context, id string) error
}

// Redeliverer sends a spooled delivery to its original channel.
type Redeliverer interface {
	Redeliver(ctx context.Context, d *domain.Delivery) error
}

// DeliveryWorker retries channel deliveries that failed during dispatch.
type DeliveryWorker struct {
	repo      DeliveryRepository
	sender    Redeliverer
	batchSize int
}

func NewDeliveryWorker(repo DeliveryRepository, sender Redeliverer) *DeliveryWorker {
	return &DeliveryWorker{
		repo:      repo,
		sender:    sender,
		batchSize: defaultBatchSize,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *DeliveryWorker) ProcessJobs(ctx context.Context) error {
	deliveries, err := w.repo.ClaimPending(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending deliveries: %w", err)
	}

	if len(deliveries) == 0 {
		return nil
	}

	log.Printf("delivery: retrying %d spooled deliveries", len(deliveries))

	ctx, span := telemetry.StartTransaction(ctx, "DeliveryWorker.ProcessJobs", "queue.process")
	defer span.End()

	for _, d := range deliveries {
		if err := w.process(ctx, d); err != nil {
			log.Printf("delivery: %s: %v", d.ID, err)
		}
	}

	return nil
}

func (w *DeliveryWorker) process(ctx context.Context, d *domain.Delivery) error {
	if err := w.sender.Redeliver(ctx, d); err != nil {
		return w.handleFailure(ctx, d, err)
	}

	if err := w.repo.UpdateStatus(ctx, d.ID, domain.DeliveryStatusDelivered, ""); err != nil {
		return fmt.Errorf("failed to mark delivered: %w", err)
	}
	log.Printf("delivery: %s %s to %s delivered", d.ID, d.EventName, d.Channel)
	return nil
}

func (w *DeliveryWorker) handleFailure(ctx context.Context, d *domain.Delivery, cause error) error {
	if err := w.repo.IncrementRetries(ctx, d.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	attempt := d.Retries + 1
	if attempt >= MaxRetries {
		log.Printf("delivery: %s to %s failed after %d retries: %v", d.ID, d.Channel, attempt, cause)
		telemetry.CaptureMessage(ctx, fmt.Sprintf("delivery %s of %s to %s abandoned", d.ID, d.EventName, d.Channel))
		errMsg := fmt.Sprintf("max retries exceeded: %v", cause)
		if err := w.repo.UpdateStatus(ctx, d.ID, domain.DeliveryStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to mark failed: %w", err)
		}
		return nil
	}

	errMsg := fmt.Sprintf("retry %d: %v", attempt, cause)
	if err := w.repo.UpdateStatus(ctx, d.ID, domain.DeliveryStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to requeue: %w", err)
	}
	return nil
}
