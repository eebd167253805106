// Package webhook delivers terminal job results to the caller-supplied
// callback URL. Delivery retries with exponential backoff, and the
// persisted delivery status is claimed before the first POST so a job
// redelivered by the broker can never trigger a second callback
// sequence.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/insilica/dockgate/internal/config"
	"github.com/insilica/dockgate/internal/domain"
	"github.com/insilica/dockgate/internal/redact"
	"github.com/insilica/dockgate/internal/retry"
	"github.com/insilica/dockgate/internal/store"
)

// Payload is the JSON body posted to the callback URL when a job
// reaches a terminal state.
type Payload struct {
	JobID     string        `json:"job_id"`
	ProteinID string        `json:"protein_id"`
	State     string        `json:"state"`
	ResultRef *string       `json:"result_ref"`
	Error     *PayloadError `json:"error"`
}

// PayloadError describes a failed job inside the callback payload.
type PayloadError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Dispatcher posts terminal results to callback URLs.
type Dispatcher struct {
	jobs   store.JobStore
	client *http.Client
	cfg    config.CallbackConfig
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher backed by the given job store.
func NewDispatcher(jobs store.JobStore, cfg config.CallbackConfig, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:   jobs,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
		logger: log.With("component", "callback_dispatcher"),
	}
}

// Deliver posts the job's terminal result to its callback URL, retrying
// with backoff up to the configured attempt budget. It first claims the
// persisted delivery status; if another sequence already owns the job
// the call is a no-op. On exhausted retries the job is marked
// delivery_failed and the result stays queryable by job ID.
func (d *Dispatcher) Deliver(ctx context.Context, job *domain.DockingJob) error {
	log := d.logger.With("job_id", job.ID, "callback_url", redact.URL(job.CallbackURL))

	claimed, err := d.jobs.ClaimDelivery(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to claim delivery: %w", err)
	}
	if !claimed {
		log.Debug("callback delivery already claimed, skipping")
		return nil
	}

	body, err := json.Marshal(payloadFor(job))
	if err != nil {
		// Should not happen for a well-formed job; record the failed
		// delivery rather than leaving the claim dangling.
		if finishErr := d.jobs.FinishDelivery(ctx, job.ID, domain.DeliveryFailed, 0); finishErr != nil {
			log.Error("failed to record delivery outcome", "error", finishErr)
		}
		return fmt.Errorf("failed to encode callback payload: %v", err)
	}

	attempts := 0
	deliverErr := retry.Do(ctx, retry.Policy{
		MaxRetries: d.cfg.MaxRetries,
		BaseDelay:  d.cfg.BaseDelay,
	}, func(ctx context.Context) error {
		attempts++
		return d.post(ctx, job.CallbackURL, body)
	})

	outcome := domain.DeliveryDelivered
	if deliverErr != nil {
		outcome = domain.DeliveryFailed
		log.Error("callback delivery failed permanently",
			"attempts", attempts,
			"error", deliverErr)
	} else {
		log.Info("callback delivered", "attempts", attempts)
	}

	if err := d.jobs.FinishDelivery(ctx, job.ID, outcome, attempts); err != nil {
		log.Error("failed to record delivery outcome", "error", err)
		return err
	}
	return deliverErr
}

// post performs one callback POST, treating connection failures and
// non-2xx responses as retryable errors.
func (d *Dispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func payloadFor(job *domain.DockingJob) Payload {
	p := Payload{
		JobID:     job.ID.String(),
		ProteinID: job.ProteinID,
		State:     string(job.State),
	}
	if job.ResultRef != "" {
		ref := job.ResultRef
		p.ResultRef = &ref
	}
	if job.State == domain.JobStateFailed {
		p.Error = &PayloadError{
			Kind:    string(job.ErrorKind),
			Message: job.ErrorMessage,
		}
	}
	return p
}
