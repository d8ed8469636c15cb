package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/tally/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRepriceDrafts recomputes a company's draft documents.
	TaskRepriceDrafts = "documents:reprice_drafts"
)

// RepriceDraftsPayload names the company whose drafts are repriced.
type RepriceDraftsPayload struct {
	CompanyID int64 `json:"company_id"`
}

// NewRepriceDraftsTask builds a reprice task for companyID.
func NewRepriceDraftsTask(companyID int64) (*asynq.Task, error) {
	if companyID <= 0 {
		return nil, fmt.Errorf("reprice drafts: invalid company id %d", companyID)
	}
	body, err := json.Marshal(RepriceDraftsPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRepriceDrafts, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.Timeout(5*time.Minute),
	), nil
}

// DraftRepricer recomputes and stores a company's drafts.
type DraftRepricer interface {
	RepriceDrafts(ctx context.Context, companyID int64) (int, error)
}

// RepriceDraftsJob handles TaskRepriceDrafts.
type RepriceDraftsJob struct {
	Repricer DraftRepricer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewRepriceDraftsJob initialises the reprice handler.
func NewRepriceDraftsJob(repricer DraftRepricer, logger *slog.Logger, metrics *jobmetrics.Metrics) *RepriceDraftsJob {
	return &RepriceDraftsJob{Repricer: repricer, Logger: logger, Metrics: metrics}
}

// Handle decodes the payload and reprices the company's drafts.
func (j *RepriceDraftsJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repricer == nil {
		return errors.New("reprice drafts: handler not configured")
	}
	var payload RepriceDraftsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("reprice drafts: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.CompanyID <= 0 {
		return fmt.Errorf("reprice drafts: invalid company id: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskRepriceDrafts)
	logger := j.logger().With(slog.Int64("company_id", payload.CompanyID))
	start := time.Now()

	updated, err := j.Repricer.RepriceDrafts(ctx, payload.CompanyID)
	if err != nil {
		logger.Error("reprice drafts failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.AddRepriced(updated)
	logger.Info("reprice drafts completed", slog.Int("updated", updated), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *RepriceDraftsJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
