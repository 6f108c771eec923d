package redis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeDeadLetterStore struct {
	entries    []DeadLetterEntry
	pendingErr error
	resolved   []string
	resolveErr error
}

func (f *fakeDeadLetterStore) Pending(ctx context.Context, limit int) ([]DeadLetterEntry, error) {
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeDeadLetterStore) Resolve(ctx context.Context, id string) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.resolved = append(f.resolved, id)
	return nil
}

func TestInspectHandler_ListsPending(t *testing.T) {
	store := &fakeDeadLetterStore{
		entries: []DeadLetterEntry{
			{
				ID:        "dl-1",
				Signature: "sig-1",
				EventName: "DealCreated",
				Error:     "insert failed",
				FailedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			},
		},
	}
	rec := httptest.NewRecorder()
	NewInspectHandler(store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dead-letters", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Entries []DeadLetterEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Entries) != 1 || body.Entries[0].ID != "dl-1" || body.Entries[0].Signature != "sig-1" {
		t.Errorf("entries = %+v", body.Entries)
	}
}

func TestInspectHandler_EmptyQueue(t *testing.T) {
	rec := httptest.NewRecorder()
	NewInspectHandler(&fakeDeadLetterStore{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dead-letters", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Entries []DeadLetterEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Entries == nil {
		t.Error("entries missing from response, want empty list")
	}
}

func TestInspectHandler_ResolvesEntry(t *testing.T) {
	store := &fakeDeadLetterStore{}
	rec := httptest.NewRecorder()
	NewInspectHandler(store).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/dead-letters?id=dl-1", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(store.resolved) != 1 || store.resolved[0] != "dl-1" {
		t.Errorf("resolved = %v, want [dl-1]", store.resolved)
	}
}

func TestInspectHandler_Errors(t *testing.T) {
	cases := []struct {
		name   string
		store  *fakeDeadLetterStore
		method string
		target string
		want   int
	}{
		{"pending failure", &fakeDeadLetterStore{pendingErr: errors.New("redis down")}, http.MethodGet, "/dead-letters", http.StatusInternalServerError},
		{"resolve failure", &fakeDeadLetterStore{resolveErr: errors.New("redis down")}, http.MethodDelete, "/dead-letters?id=dl-1", http.StatusInternalServerError},
		{"delete without id", &fakeDeadLetterStore{}, http.MethodDelete, "/dead-letters", http.StatusBadRequest},
		{"unsupported method", &fakeDeadLetterStore{}, http.MethodPost, "/dead-letters", http.StatusMethodNotAllowed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewInspectHandler(tc.store).ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, nil))
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
