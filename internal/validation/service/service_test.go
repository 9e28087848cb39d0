package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"retinagate/internal/blob"
	retinamodels "retinagate/internal/retina/models"
	"retinagate/internal/validation/correlate"
	"retinagate/internal/validation/models"
)

type fakeRepo struct {
	candidates []retinamodels.Candidate
	err        error
	calls      int
}

func (r *fakeRepo) FindCandidatesByOrganization(context.Context, string) ([]retinamodels.Candidate, error) {
	r.calls++
	return r.candidates, r.err
}

type fakeDispatcher struct {
	ok    bool
	calls int
	sent  []models.ValidationCommand
}

func (d *fakeDispatcher) SendValidationCommand(_ context.Context, cmd models.ValidationCommand) bool {
	d.calls++
	d.sent = append(d.sent, cmd)
	return d.ok
}

type fakeCorrelator struct {
	resp  models.ValidationResponse
	err   error
	calls int
	ids   []string
}

func (c *fakeCorrelator) Await(_ context.Context, correlationID string, _ time.Duration) (models.ValidationResponse, error) {
	c.calls++
	c.ids = append(c.ids, correlationID)
	return c.resp, c.err
}

type failingBlobStore struct{}

func (failingBlobStore) Upload(context.Context, []byte, string, string) (string, error) {
	return "", errors.New("storage unavailable")
}
func (failingBlobStore) Download(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}
func (failingBlobStore) DeleteIfExists(context.Context, string) (bool, error) {
	return false, errors.New("storage unavailable")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candidates(n int) []retinamodels.Candidate {
	out := make([]retinamodels.Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, retinamodels.Candidate{EmployeeID: "emp", DocumentID: "doc"})
	}
	return out
}

type fakeAnalyzer struct {
	resp  models.ValidationResponse
	err   error
	calls int
}

func (a *fakeAnalyzer) Validate(_ context.Context, _ models.ValidationCommand) (models.ValidationResponse, error) {
	a.calls++
	return a.resp, a.err
}

func newOrchestrator(repo *fakeRepo, d *fakeDispatcher, c *fakeCorrelator) *Orchestrator {
	return New(blob.NewMemoryStore(), repo, d, c, nil, time.Second, testLogger(), nil)
}

func TestValidateMatch(t *testing.T) {
	emp := "emp-7"
	repo := &fakeRepo{candidates: candidates(3)}
	dispatcher := &fakeDispatcher{ok: true}
	correlator := &fakeCorrelator{resp: models.ValidationResponse{
		Status:             models.StatusSuccess,
		MatchingEmployeeID: &emp,
		Similarity:         0.93,
	}}

	res := newOrchestrator(repo, dispatcher, correlator).Validate(
		context.Background(), "org-1", "probe.png", []byte("img"), "image/png")

	require.Equal(t, OutcomeMatched, res.Outcome)
	require.Equal(t, "emp-7", *res.MatchingEmployeeID)
	require.InDelta(t, 0.93, res.Similarity, 1e-9)

	// The command carries the stored image path, the full candidate set,
	// and the same correlation id the orchestrator then waited on.
	require.Len(t, dispatcher.sent, 1)
	cmd := dispatcher.sent[0]
	require.NotEmpty(t, cmd.ImagePath)
	require.Len(t, cmd.Employees, 3)
	require.Equal(t, []string{cmd.MessageID}, correlator.ids)
}

func TestValidateNoMatch(t *testing.T) {
	repo := &fakeRepo{candidates: candidates(2)}
	dispatcher := &fakeDispatcher{ok: true}
	correlator := &fakeCorrelator{resp: models.ValidationResponse{
		Status:     models.StatusSuccess,
		Similarity: 0.41,
	}}

	res := newOrchestrator(repo, dispatcher, correlator).Validate(
		context.Background(), "org-1", "probe.png", []byte("img"), "image/png")

	require.Equal(t, OutcomeNoMatch, res.Outcome)
	require.Nil(t, res.MatchingEmployeeID)
}

func TestValidateTimeout(t *testing.T) {
	repo := &fakeRepo{candidates: candidates(1)}
	dispatcher := &fakeDispatcher{ok: true}
	correlator := &fakeCorrelator{err: correlate.ErrTimeout}

	res := newOrchestrator(repo, dispatcher, correlator).Validate(
		context.Background(), "org-1", "probe.png", []byte("img"), "image/png")

	require.Equal(t, OutcomeTimeout, res.Outcome)
	require.NotEmpty(t, res.Message)
}

func TestValidateDispatchFailureSkipsWait(t *testing.T) {
	repo := &fakeRepo{candidates: candidates(1)}
	dispatcher := &fakeDispatcher{ok: false}
	correlator := &fakeCorrelator{}

	res := newOrchestrator(repo, dispatcher, correlator).Validate(
		context.Background(), "org-1", "probe.png", []byte("img"), "image/png")

	require.Equal(t, OutcomeDispatchFailed, res.Outcome)
	require.Zero(t, correlator.calls, "no wait is registered when the send fails")
}

func TestValidateFallsBackToAnalyzerWhenDispatchFails(t *testing.T) {
	emp := "emp-4"
	repo := &fakeRepo{candidates: candidates(2)}
	dispatcher := &fakeDispatcher{ok: false}
	correlator := &fakeCorrelator{}
	inline := &fakeAnalyzer{resp: models.ValidationResponse{
		Status:             models.StatusSuccess,
		MatchingEmployeeID: &emp,
		Similarity:         0.89,
	}}
	o := New(blob.NewMemoryStore(), repo, dispatcher, correlator, inline, time.Second, testLogger(), nil)

	res := o.Validate(context.Background(), "org-1", "probe.png", []byte("img"), "image/png")

	require.Equal(t, OutcomeMatched, res.Outcome)
	require.Equal(t, "emp-4", *res.MatchingEmployeeID)
	require.Equal(t, 1, inline.calls)
	require.Zero(t, correlator.calls, "the inline path never registers a wait")
}

func TestValidateAnalyzerFallbackNoMatch(t *testing.T) {
	repo := &fakeRepo{candidates: candidates(1)}
	dispatcher := &fakeDispatcher{ok: false}
	inline := &fakeAnalyzer{resp: models.ValidationResponse{Status: models.StatusSuccess, Similarity: 0.3}}
	o := New(blob.NewMemoryStore(), repo, dispatcher, &fakeCorrelator{}, inline, time.Second, testLogger(), nil)

	res := o.Validate(context.Background(), "org-1", "probe.png", []byte("img"), "image/png")
	require.Equal(t, OutcomeNoMatch, res.Outcome)
}

func TestValidateAnalyzerFallbackFailure(t *testing.T) {
	repo := &fakeRepo{candidates: candidates(1)}
	dispatcher := &fakeDispatcher{ok: false}
	inline := &fakeAnalyzer{err: errors.New("analyzer unreachable")}
	o := New(blob.NewMemoryStore(), repo, dispatcher, &fakeCorrelator{}, inline, time.Second, testLogger(), nil)

	res := o.Validate(context.Background(), "org-1", "probe.png", []byte("img"), "image/png")
	require.Equal(t, OutcomeDispatchFailed, res.Outcome)
}

func TestValidateAnalyzerNotConsultedWhenQueueWorks(t *testing.T) {
	repo := &fakeRepo{candidates: candidates(1)}
	dispatcher := &fakeDispatcher{ok: true}
	correlator := &fakeCorrelator{resp: models.ValidationResponse{Status: models.StatusSuccess, Similarity: 0.2}}
	inline := &fakeAnalyzer{}
	o := New(blob.NewMemoryStore(), repo, dispatcher, correlator, inline, time.Second, testLogger(), nil)

	o.Validate(context.Background(), "org-1", "probe.png", []byte("img"), "image/png")
	require.Zero(t, inline.calls, "the queue path does not touch the analyzer")
	require.Equal(t, 1, correlator.calls)
}

func TestValidateNoCandidatesSkipsQueue(t *testing.T) {
	repo := &fakeRepo{}
	dispatcher := &fakeDispatcher{ok: true}
	correlator := &fakeCorrelator{}

	res := newOrchestrator(repo, dispatcher, correlator).Validate(
		context.Background(), "org-empty", "probe.png", []byte("img"), "image/png")

	require.Equal(t, OutcomeNoCandidates, res.Outcome)
	require.Zero(t, dispatcher.calls, "queue is never contacted without candidates")
	require.Zero(t, correlator.calls)
}

func TestValidateCandidateLookupFailure(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	dispatcher := &fakeDispatcher{ok: true}
	correlator := &fakeCorrelator{}

	res := newOrchestrator(repo, dispatcher, correlator).Validate(
		context.Background(), "org-1", "probe.png", []byte("img"), "image/png")

	require.Equal(t, OutcomeDispatchFailed, res.Outcome)
	require.Zero(t, dispatcher.calls)
}

func TestValidateUploadFailure(t *testing.T) {
	repo := &fakeRepo{candidates: candidates(1)}
	dispatcher := &fakeDispatcher{ok: true}
	correlator := &fakeCorrelator{}
	o := New(failingBlobStore{}, repo, dispatcher, correlator, nil, time.Second, testLogger(), nil)

	res := o.Validate(context.Background(), "org-1", "probe.png", []byte("img"), "image/png")

	require.Equal(t, OutcomeDispatchFailed, res.Outcome)
	require.Zero(t, repo.calls, "nothing proceeds past a failed upload")
}

// End to end against a real correlator: the response handler resolves the
// wait the orchestrator registered.
func TestValidateResolvedByResponseHandler(t *testing.T) {
	repo := &fakeRepo{candidates: candidates(1)}
	correlator := correlate.New(time.Second, testLogger())

	emp := "emp-9"
	dispatcher := &resolvingDispatcher{c: correlator, employeeID: emp}
	o := New(blob.NewMemoryStore(), repo, dispatcher, correlator, nil, time.Second, testLogger(), nil)

	res := o.Validate(context.Background(), "org-1", "probe.png", []byte("img"), "image/png")
	require.Equal(t, OutcomeMatched, res.Outcome)
	require.Equal(t, "emp-9", *res.MatchingEmployeeID)
	require.Equal(t, 0, correlator.PendingWaits())
}

// resolvingDispatcher plays the pipeline: it answers every command on the
// correlator shortly after the send, as the response queue consumer would.
type resolvingDispatcher struct {
	c          *correlate.Correlator
	employeeID string
}

func (d *resolvingDispatcher) SendValidationCommand(_ context.Context, cmd models.ValidationCommand) bool {
	go func() {
		time.Sleep(10 * time.Millisecond)
		emp := d.employeeID
		d.c.Resolve(cmd.MessageID, models.ValidationResponse{
			Status:             models.StatusSuccess,
			MatchingEmployeeID: &emp,
			Similarity:         0.88,
			MessageID:          cmd.MessageID,
		})
	}()
	return true
}
