// Package service orchestrates one validation request end to end: store the
// probe image, load the candidate set, dispatch the command, and wait for
// the correlated response. Every request ends in exactly one terminal
// outcome; transport trouble and business answers are never conflated.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"retinagate/internal/blob"
	retinamodels "retinagate/internal/retina/models"
	"retinagate/internal/validation/correlate"
	"retinagate/internal/validation/metrics"
	"retinagate/internal/validation/models"
)

// Outcome is the terminal state of a validation request.
type Outcome string

const (
	// OutcomeMatched: the pipeline named a matching employee.
	OutcomeMatched Outcome = "matched"
	// OutcomeNoMatch: the pipeline answered and no candidate matched.
	OutcomeNoMatch Outcome = "no_match"
	// OutcomeNoCandidates: the organization has no enrolled photos; the
	// queue is never contacted.
	OutcomeNoCandidates Outcome = "no_candidates"
	// OutcomeTimeout: the pipeline did not answer within the wait window.
	// Distinct from OutcomeNoMatch: the caller may retry.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeDispatchFailed: the request never reached the pipeline
	// (blob upload, candidate lookup, or send failed).
	OutcomeDispatchFailed Outcome = "dispatch_failed"
)

// Result is what the HTTP layer renders. Underlying causes for dispatch
// failures are logged, not returned to clients.
type Result struct {
	Outcome            Outcome
	MatchingEmployeeID *string
	Similarity         float64
	Message            string
}

// Repository is the slice of the retina store the orchestrator needs.
type Repository interface {
	FindCandidatesByOrganization(ctx context.Context, orgID string) ([]retinamodels.Candidate, error)
}

// Dispatcher sends validation commands.
type Dispatcher interface {
	SendValidationCommand(ctx context.Context, cmd models.ValidationCommand) bool
}

// Correlator awaits correlated responses.
type Correlator interface {
	Await(ctx context.Context, correlationID string, timeout time.Duration) (models.ValidationResponse, error)
}

// Analyzer answers validation commands synchronously over HTTP. Optional:
// when present it serves as the fallback path for requests the queue could
// not carry.
type Analyzer interface {
	Validate(ctx context.Context, cmd models.ValidationCommand) (models.ValidationResponse, error)
}

// Orchestrator composes the validation flow.
type Orchestrator struct {
	blobs      blob.Store
	repo       Repository
	dispatcher Dispatcher
	correlator Correlator
	analyzer   Analyzer
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New constructs an orchestrator. timeout bounds the wait for a correlated
// response; zero means correlate.DefaultTimeout. analyzer may be nil, in
// which case a failed dispatch is terminal.
func New(blobs blob.Store, repo Repository, dispatcher Dispatcher, correlator Correlator,
	analyzer Analyzer, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if timeout <= 0 {
		timeout = correlate.DefaultTimeout
	}
	return &Orchestrator{
		blobs:      blobs,
		repo:       repo,
		dispatcher: dispatcher,
		correlator: correlator,
		analyzer:   analyzer,
		timeout:    timeout,
		logger:     logger.With("component", "validation.service"),
		metrics:    m,
	}
}

// Validate runs one validation request to a terminal outcome. It never
// returns an error: failures map to outcomes so the HTTP layer can always
// answer with a typed result.
func (o *Orchestrator) Validate(ctx context.Context, orgID, filename string, image []byte, contentType string) Result {
	result := o.validate(ctx, orgID, filename, image, contentType)
	o.metrics.IncrementOutcome(string(result.Outcome))
	return result
}

func (o *Orchestrator) validate(ctx context.Context, orgID, filename string, image []byte, contentType string) Result {
	blobPath := fmt.Sprintf("validation/%s-%s", uuid.NewString(), filename)
	storedPath, err := o.blobs.Upload(ctx, image, blobPath, contentType)
	if err != nil {
		o.logger.ErrorContext(ctx, "probe image upload failed", "error", err)
		return Result{Outcome: OutcomeDispatchFailed, Message: "failed to store image"}
	}

	candidates, err := o.repo.FindCandidatesByOrganization(ctx, orgID)
	if err != nil {
		o.logger.ErrorContext(ctx, "candidate lookup failed", "org_id", orgID, "error", err)
		return Result{Outcome: OutcomeDispatchFailed, Message: "failed to load candidates"}
	}
	if len(candidates) == 0 {
		return Result{
			Outcome: OutcomeNoCandidates,
			Message: "no employees with retina images found for this organization",
		}
	}

	employees := make([]models.EmployeeCandidate, 0, len(candidates))
	for _, c := range candidates {
		employees = append(employees, models.EmployeeCandidate{
			EmployeeID: c.EmployeeID,
			DocumentID: c.DocumentID,
		})
	}

	correlationID := uuid.NewString()
	cmd := models.ValidationCommand{
		ImagePath: storedPath,
		Employees: employees,
		MessageID: correlationID,
	}
	if !o.dispatcher.SendValidationCommand(ctx, cmd) {
		if o.analyzer != nil {
			return o.validateInline(ctx, cmd)
		}
		return Result{Outcome: OutcomeDispatchFailed, Message: "failed to dispatch validation command"}
	}

	start := time.Now()
	resp, err := o.correlator.Await(ctx, correlationID, o.timeout)
	o.metrics.ObserveAwait(time.Since(start))
	if err != nil {
		if errors.Is(err, correlate.ErrTimeout) {
			return Result{
				Outcome: OutcomeTimeout,
				Message: "validation timed out, please try again later",
			}
		}
		o.logger.ErrorContext(ctx, "wait for validation response failed",
			"correlation_id", correlationID, "error", err)
		return Result{Outcome: OutcomeDispatchFailed, Message: "validation interrupted"}
	}

	return resultFromResponse(resp)
}

// validateInline posts the command straight to the analyzer and answers on
// the same call. Fallback path for requests the queue could not carry; no
// wait is ever registered.
func (o *Orchestrator) validateInline(ctx context.Context, cmd models.ValidationCommand) Result {
	o.logger.InfoContext(ctx, "queue dispatch failed, validating inline via analyzer",
		"correlation_id", cmd.MessageID)

	resp, err := o.analyzer.Validate(ctx, cmd)
	if err != nil {
		o.logger.ErrorContext(ctx, "inline validation failed",
			"correlation_id", cmd.MessageID, "error", err)
		return Result{Outcome: OutcomeDispatchFailed, Message: "failed to dispatch validation command"}
	}
	return resultFromResponse(resp)
}

func resultFromResponse(resp models.ValidationResponse) Result {
	if resp.Matched() {
		return Result{
			Outcome:            OutcomeMatched,
			MatchingEmployeeID: resp.MatchingEmployeeID,
			Similarity:         resp.Similarity,
		}
	}
	return Result{
		Outcome:    OutcomeNoMatch,
		Similarity: resp.Similarity,
		Message:    resp.Message,
	}
}
