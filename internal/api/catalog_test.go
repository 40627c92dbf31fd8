package api

import (
	"net/http"
	"testing"
)

func TestListCategories(t *testing.T) {
	h := newTestHarness(t)
	h.SeedCatalog()

	var cats []categoryResponse
	h.DoJSON("GET", "/v1/categories", "", nil, &cats)
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	if cats[0].Slug != "git" || cats[0].TipCount != 2 {
		t.Errorf("first category = %+v", cats[0])
	}
	if cats[1].Slug != "shell" || cats[1].TipCount != 1 {
		t.Errorf("second category = %+v", cats[1])
	}
}

func TestListCategoriesEmpty(t *testing.T) {
	h := newTestHarness(t)

	var cats []categoryResponse
	h.DoJSON("GET", "/v1/categories", "", nil, &cats)
	if cats == nil || len(cats) != 0 {
		t.Fatalf("expected empty array, got %v", cats)
	}
}

func TestListTips(t *testing.T) {
	h := newTestHarness(t)
	h.SeedCatalog()

	var all tipListResponse
	h.DoJSON("GET", "/v1/tips", "", nil, &all)
	if all.Total != 3 || len(all.Tips) != 3 {
		t.Fatalf("expected 3 tips, got total=%d len=%d", all.Total, len(all.Tips))
	}
	if all.Tips[0].Body != "" {
		t.Error("list should omit bodies")
	}

	var git tipListResponse
	h.DoJSON("GET", "/v1/tips?category=git&limit=1&offset=1", "", nil, &git)
	if git.Total != 2 || len(git.Tips) != 1 {
		t.Fatalf("expected one of two git tips, got total=%d len=%d", git.Total, len(git.Tips))
	}
	if git.Tips[0].ID != "t2" || git.Limit != 1 || git.Offset != 1 {
		t.Fatalf("unexpected page: %+v", git)
	}
}

func TestListTipsLimitClamped(t *testing.T) {
	h := newTestHarness(t)
	h.SeedCatalog()

	var page tipListResponse
	h.DoJSON("GET", "/v1/tips?limit=100000", "", nil, &page)
	if page.Limit != 200 {
		t.Fatalf("limit = %d, want 200", page.Limit)
	}
}

func TestListTipsBadParams(t *testing.T) {
	h := newTestHarness(t)
	for _, q := range []string{"limit=0", "limit=abc", "offset=-1"} {
		h.AssertErrorResponse(h.Do("GET", "/v1/tips?"+q, "", nil), http.StatusBadRequest, ErrCodeBadRequest)
	}
}

func TestListTipsUnknownCategory(t *testing.T) {
	h := newTestHarness(t)
	h.SeedCatalog()
	h.AssertErrorResponse(h.Do("GET", "/v1/tips?category=cooking", "", nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestGetTip(t *testing.T) {
	h := newTestHarness(t)
	h.SeedCatalog()

	var tip tipResponse
	h.DoJSON("GET", "/v1/tips/t3", "", nil, &tip)
	if tip.Category != "shell" || tip.Body != "Use `!$`." || tip.CreatedAt == "" {
		t.Fatalf("unexpected tip: %+v", tip)
	}

	h.AssertErrorResponse(h.Do("GET", "/v1/tips/nope", "", nil), http.StatusNotFound, ErrCodeNotFound)
}
