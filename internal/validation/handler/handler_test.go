package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"retinagate/internal/blob"
	retinaservice "retinagate/internal/retina/service"
	retinastore "retinagate/internal/retina/store"
	validationmodels "retinagate/internal/validation/models"
	"retinagate/internal/validation/service"
)

type fakeValidator struct {
	result service.Result
	orgID  string
}

func (v *fakeValidator) Validate(_ context.Context, orgID, _ string, _ []byte, _ string) service.Result {
	v.orgID = orgID
	return v.result
}

type noopDispatcher struct{}

func (noopDispatcher) SendIndexingCommand(context.Context, validationmodels.IndexingCommand) bool {
	return true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(t *testing.T, validator Validator) *chi.Mux {
	t.Helper()
	retinas := retinaservice.New(blob.NewMemoryStore(), retinastore.NewMemoryStore(), noopDispatcher{}, testLogger())
	r := chi.NewRouter()
	New(validator, retinas, testLogger()).Register(r)
	return r
}

func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "probe.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("pixels"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postMultipart(t *testing.T, r http.Handler, url string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields)
	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleValidateMatched(t *testing.T) {
	emp := "emp-3"
	validator := &fakeValidator{result: service.Result{
		Outcome:            service.OutcomeMatched,
		MatchingEmployeeID: &emp,
		Similarity:         0.95,
	}}
	r := newRouter(t, validator)

	rec := postMultipart(t, r, "/validation/retina", map[string]string{"organizationId": "org-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "org-1", validator.orgID)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "success", resp["status"])
	require.Equal(t, "emp-3", resp["matchingEmployeeId"])
}

func TestHandleValidateTerminalOutcomesAre200(t *testing.T) {
	for outcome, status := range map[service.Outcome]string{
		service.OutcomeNoMatch:      "no_match",
		service.OutcomeNoCandidates: "no_candidates",
		service.OutcomeTimeout:      "timeout",
	} {
		r := newRouter(t, &fakeValidator{result: service.Result{Outcome: outcome}})
		rec := postMultipart(t, r, "/validation/retina", map[string]string{"organizationId": "org-1"})
		require.Equal(t, http.StatusOK, rec.Code, "outcome %s", outcome)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, status, resp["status"])
	}
}

func TestHandleValidateDispatchFailureIs502(t *testing.T) {
	r := newRouter(t, &fakeValidator{result: service.Result{Outcome: service.OutcomeDispatchFailed}})
	rec := postMultipart(t, r, "/validation/retina", map[string]string{"organizationId": "org-1"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleValidateRequiresOrganizationID(t *testing.T) {
	r := newRouter(t, &fakeValidator{})
	rec := postMultipart(t, r, "/validation/retina", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleValidateRequiresFile(t *testing.T) {
	r := newRouter(t, &fakeValidator{})
	req := httptest.NewRequest(http.MethodPost, "/validation/retina", bytes.NewBufferString("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetinaCRUD(t *testing.T) {
	r := newRouter(t, &fakeValidator{})
	base := "/storage/organizations/org-1/employees/emp-1/retinas"

	rec := postMultipart(t, r, base+"/", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created["id"])

	req := httptest.NewRequest(http.MethodGet, base+"/", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	req = httptest.NewRequest(http.MethodGet, base+"/"+created["id"], nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pixels", rec.Body.String())

	req = httptest.NewRequest(http.MethodDelete, base+"/"+created["id"], nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, base+"/"+created["id"], nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
