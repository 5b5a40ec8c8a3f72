package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agency-leads/internal/followup"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

func seededFollowups(t *testing.T) *followup.MemoryStore {
	t.Helper()
	store := followup.NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for step := 1; step <= 2; step++ {
		require.NoError(t, store.Create(context.Background(), &followup.ScheduledEmail{
			LeadEmail:  "jane@example.com",
			LeadName:   "Jane Doe",
			SequenceID: "hot-lead",
			Step:       step,
			SendAt:     base.Add(time.Duration(step) * 24 * time.Hour),
		}))
	}
	return store
}

func TestFollowupsList(t *testing.T) {
	h := NewAdminFollowupsHandler(seededFollowups(t), logging.Discard())
	rec := httptest.NewRecorder()

	h.List(rec, httptest.NewRequest(http.MethodGet, "/admin/followups?email=Jane@Example.com", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Email     string                    `json:"email"`
		Followups []followup.ScheduledEmail `json:"followups"`
		Count     int                       `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "jane@example.com", body.Email)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 1, body.Followups[0].Step)
	assert.Equal(t, followup.StatusPending, body.Followups[0].Status)
}

func TestFollowupsListRequiresEmail(t *testing.T) {
	h := NewAdminFollowupsHandler(followup.NewMemoryStore(), logging.Discard())
	for _, q := range []string{"", "?email=", "?email=not-an-email", "?email=Jane%20%3Cjane@example.com%3E"} {
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/admin/followups"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %q", q)
	}
}

func TestFollowupsListEmpty(t *testing.T) {
	h := NewAdminFollowupsHandler(followup.NewMemoryStore(), logging.Discard())
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/admin/followups?email=nobody@example.com", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"followups":[]`)
}

func TestFollowupsCancel(t *testing.T) {
	store := seededFollowups(t)
	h := NewAdminFollowupsHandler(store, logging.Discard())
	rec := httptest.NewRecorder()

	h.Cancel(rec, httptest.NewRequest(http.MethodPost, "/admin/followups/cancel", strings.NewReader(`{"email":"jane@example.com"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"email":"jane@example.com","cancelled":2}`, rec.Body.String())

	rows, err := store.ListByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	for _, row := range rows {
		assert.Equal(t, followup.StatusCancelled, row.Status)
	}
}

func TestFollowupsCancelBadRequest(t *testing.T) {
	h := NewAdminFollowupsHandler(followup.NewMemoryStore(), logging.Discard())
	for _, body := range []string{"", "{", `{"email":""}`, `{"email":"nope"}`} {
		rec := httptest.NewRecorder()
		h.Cancel(rec, httptest.NewRequest(http.MethodPost, "/admin/followups/cancel", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

type failingFollowups struct{ followup.Repository }

func (failingFollowups) ListByEmail(context.Context, string) ([]followup.ScheduledEmail, error) {
	return nil, errors.New("db down")
}

func TestFollowupsListStoreError(t *testing.T) {
	h := NewAdminFollowupsHandler(failingFollowups{}, logging.Discard())
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/admin/followups?email=jane@example.com", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}
