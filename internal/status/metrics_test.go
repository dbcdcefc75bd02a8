package status

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecordAndScrape(t *testing.T) {
	Record(Progress{
		ActuallyVisited: 3,
		VisitedCounter:  5,
		LinksScheduled:  2,
		PagesScheduled:  1,
		LeftToCrawl:     4,
		PercentComplete: 55.5,
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"sitecrawl_actually_visited 3",
		"sitecrawl_visited_total 5",
		"sitecrawl_percent_complete 55.5",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected scrape output to contain %q, got:\n%s", want, body)
		}
	}
}
