package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

func seededHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	repo := NewInMemoryRepository()
	id, err := repo.Insert(context.Background(), &LeadRecord{FirstName: "Jane", Email: "jane@example.com", Score: 85})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return NewHandler(repo, logging.Discard()), id
}

func TestListLeads(t *testing.T) {
	handler, _ := seededHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/leads?limit=500&offset=-1", nil)
	w := httptest.NewRecorder()
	handler.ListLeads(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp ListLeadsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || resp.Limit != 50 || resp.Offset != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestListLeads_UnknownStatus(t *testing.T) {
	handler, _ := seededHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/leads?status=archived", nil)
	w := httptest.NewRecorder()
	handler.ListLeads(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGetLead(t *testing.T) {
	handler, id := seededHandler(t)

	r := chi.NewRouter()
	r.Get("/admin/leads/{leadID}", handler.GetLead)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/leads/"+id, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var lead LeadRecord
	if err := json.NewDecoder(w.Body).Decode(&lead); err != nil {
		t.Fatalf("failed to decode lead: %v", err)
	}
	if lead.Email != "jane@example.com" {
		t.Fatalf("unexpected lead %+v", lead)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/leads/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

type failingRepository struct{}

func (failingRepository) Insert(context.Context, *LeadRecord) (string, error) {
	return "", errors.New("boom")
}

func (failingRepository) GetByID(context.Context, string) (*LeadRecord, error) {
	return nil, errors.New("boom")
}

func (failingRepository) List(context.Context, ListFilter) ([]*LeadRecord, error) {
	return nil, errors.New("boom")
}

func TestHandler_RepositoryErrors(t *testing.T) {
	handler := NewHandler(failingRepository{}, logging.Discard())

	w := httptest.NewRecorder()
	handler.ListLeads(w, httptest.NewRequest(http.MethodGet, "/admin/leads", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d, got %d", http.StatusInternalServerError, w.Code)
	}

	r := chi.NewRouter()
	r.Get("/admin/leads/{leadID}", handler.GetLead)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/leads/abc", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d, got %d", http.StatusInternalServerError, w.Code)
	}
}
