package domain

import (
	"errors"
	"testing"
)

func TestValidatePageRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		page     int
		pageSize int
		wantErr  bool
	}{
		{"first page", 1, 20, false},
		{"max size", 3, MaxPageSize, false},
		{"zero page", 0, 20, true},
		{"negative page", -1, 20, true},
		{"zero size", 1, 0, true},
		{"oversized", 1, MaxPageSize + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePageRequest(tt.page, tt.pageSize)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestNewPagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                  string
		page, pageSize, total int
		wantPage, wantPages   int
	}{
		{"empty result has zero pages", 1, 20, 0, 1, 0},
		{"empty result clamps page", 5, 20, 0, 1, 0},
		{"exact fit", 1, 10, 30, 1, 3},
		{"remainder rounds up", 2, 10, 31, 2, 4},
		{"page past end is clamped", 9, 10, 31, 4, 4},
		{"single item", 1, 200, 1, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewPagination(tt.page, tt.pageSize, tt.total)
			if p.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", p.TotalPages, tt.wantPages)
			}
			if p.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", p.Page, tt.wantPage)
			}
			if p.Total != tt.total || p.PageSize != tt.pageSize {
				t.Errorf("unexpected pagination %+v", p)
			}
		})
	}
}

func TestPagination_Offset(t *testing.T) {
	t.Parallel()

	if got := (Pagination{Page: 3, PageSize: 25}).Offset(); got != 50 {
		t.Fatalf("Offset() = %d, want 50", got)
	}
}
