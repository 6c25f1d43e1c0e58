package audit

import (
	"context"
	"testing"
	"time"
)

type stubTimelineRepo struct {
	rows       []TimelineRow
	lastOrg    string
	lastOffset int
	lastLimit  int
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, orgID string, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.lastOrg = orgID
	s.lastOffset = offset
	s.lastLimit = limit
	if limit < len(s.rows) {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func mockRow(ts, actor, action string) TimelineRow {
	tval, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{At: tval, Actor: actor, Action: action}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{
		rows: []TimelineRow{
			mockRow("2026-03-10T10:00:00Z", "u1", "gpg_key.create"),
			mockRow("2026-03-09T09:00:00Z", "u1", "gpg_key.delete"),
			mockRow("2026-03-08T08:00:00Z", "u2", "tuple.grant"),
		},
	}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), "o1", TimelineFilters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext {
		t.Fatalf("expected hasNext true")
	}
	if repo.lastOrg != "o1" {
		t.Fatalf("expected org o1, got %s", repo.lastOrg)
	}
	if repo.lastLimit != 3 {
		t.Fatalf("expected limit 3, got %d", repo.lastLimit)
	}
	if repo.lastOffset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastOffset)
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), "o1", TimelineFilters{Page: 3, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.PageSize != 50 {
		t.Fatalf("expected clamped page size 50, got %d", result.Paging.PageSize)
	}
	if repo.lastOffset != 100 {
		t.Fatalf("expected offset 100, got %d", repo.lastOffset)
	}
	if result.Paging.PrevPage != 2 {
		t.Fatalf("expected prev page 2, got %d", result.Paging.PrevPage)
	}
}
