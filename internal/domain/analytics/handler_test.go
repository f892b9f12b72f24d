package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type staticRepo struct{ s *Summary }

func (r *staticRepo) Summary(context.Context) (*Summary, error) { return r.s, nil }

func TestGetSummary(t *testing.T) {
	h := NewHandler(&staticRepo{s: &Summary{
		TotalClaims:    3,
		ClaimsByStatus: map[string]int{"submitted": 2, "paid": 1},
		TotalCharged:   1275.00,
		TotalPaid:      425.00,
	}})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/analytics/summary", nil)
	rec := httptest.NewRecorder()
	if err := h.GetSummary(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalClaims != 3 || got.ClaimsByStatus["submitted"] != 2 {
		t.Errorf("unexpected summary: %+v", got)
	}
	if got.TotalPaid != 425.00 {
		t.Errorf("unexpected total paid: %v", got.TotalPaid)
	}
}
