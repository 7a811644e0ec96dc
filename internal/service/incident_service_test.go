package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"opsdesk/internal/domain"
	"opsdesk/internal/repository"
)

// fakeIncidentRepo is an in-memory IncidentRepository recording the filter
// it was last called with.
type fakeIncidentRepo struct {
	incidents  map[int64]domain.Incident
	nextID     int64
	lastFilter repository.ListFilter
	listItems  []domain.Incident
	listTotal  int
}

func newFakeIncidentRepo() *fakeIncidentRepo {
	return &fakeIncidentRepo{incidents: map[int64]domain.Incident{}, nextID: 1}
}

func (f *fakeIncidentRepo) Init(ctx context.Context) error { return nil }

func (f *fakeIncidentRepo) Create(ctx context.Context, incident *domain.Incident) (int64, error) {
	incident.ID = f.nextID
	f.nextID++
	f.incidents[incident.ID] = *incident
	return incident.ID, nil
}

func (f *fakeIncidentRepo) Update(ctx context.Context, incident *domain.Incident) error {
	if _, ok := f.incidents[incident.ID]; !ok {
		return repository.ErrNotFound
	}
	f.incidents[incident.ID] = *incident
	return nil
}

func (f *fakeIncidentRepo) Delete(ctx context.Context, id int64) error {
	delete(f.incidents, id)
	return nil
}

func (f *fakeIncidentRepo) Get(ctx context.Context, id int64) (*domain.Incident, error) {
	incident, ok := f.incidents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &incident, nil
}

func (f *fakeIncidentRepo) List(ctx context.Context, filter repository.ListFilter) ([]domain.Incident, int, error) {
	f.lastFilter = filter
	return f.listItems, f.listTotal, nil
}

func (f *fakeIncidentRepo) All(ctx context.Context) ([]domain.Incident, error) {
	var out []domain.Incident
	for _, incident := range f.incidents {
		out = append(out, incident)
	}
	return out, nil
}

func TestNormalizePageSize(t *testing.T) {
	// Effective size is always min(max(requested, 1), MaxPageSize).
	cases := []struct {
		in, want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{50, 50},
		{100, 100},
		{101, MaxPageSize},
		{100000, MaxPageSize},
	}
	for _, tc := range cases {
		if got := NormalizePageSize(tc.in); got != tc.want {
			t.Errorf("NormalizePageSize(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePage(t *testing.T) {
	for _, tc := range []struct{ in, want int }{{-1, 1}, {0, 1}, {1, 1}, {7, 7}} {
		if got := NormalizePage(tc.in); got != tc.want {
			t.Errorf("NormalizePage(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total, pageSize, want int
	}{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{3, 1, 3},
		{99, 100, 1},
		{101, 100, 2},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.pageSize); got != tc.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tc.total, tc.pageSize, got, tc.want)
		}
	}
}

func TestListNormalizesFilters(t *testing.T) {
	repo := newFakeIncidentRepo()
	svc := NewIncidentService(repo)

	_, err := svc.List(context.Background(), ListQuery{
		Page:     -3,
		PageSize: 5000,
		Status:   "ALL",
		Priority: " all ",
		Search:   "   ",
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	got := repo.lastFilter
	if got.Status != "" || got.Priority != "" || got.Search != "" {
		t.Fatalf("sentinel/blank filters should be dropped, got %+v", got)
	}
	if got.Limit != MaxPageSize {
		t.Fatalf("expected limit clamped to %d, got %d", MaxPageSize, got.Limit)
	}
	if got.Offset != 0 {
		t.Fatalf("expected offset 0 for clamped page, got %d", got.Offset)
	}
}

func TestListReportsClampedPage(t *testing.T) {
	repo := newFakeIncidentRepo()
	repo.listTotal = 3
	svc := NewIncidentService(repo)

	result, err := svc.List(context.Background(), ListQuery{Page: 999, PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 3 || result.TotalPages != 1 || result.Page != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Items) != 0 {
		t.Fatalf("expected empty items, got %d", len(result.Items))
	}
	// The fetch still ran with the requested window.
	if repo.lastFilter.Offset != 9980 {
		t.Fatalf("expected offset 9980, got %d", repo.lastFilter.Offset)
	}
}

func TestListEmptyResultHasOnePage(t *testing.T) {
	repo := newFakeIncidentRepo()
	svc := NewIncidentService(repo)

	result, err := svc.List(context.Background(), ListQuery{PageSize: DefaultPageSize})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 0 || result.TotalPages != 1 || result.Page != 1 || result.PageSize != DefaultPageSize {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCreateReportsAllMissingFields(t *testing.T) {
	repo := newFakeIncidentRepo()
	svc := NewIncidentService(repo)

	_, err := svc.Create(context.Background(), CreateIncidentInput{
		Title:    "  ",
		Status:   "Open",
		Priority: "Low",
	})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"title", "description", "severity", "category", "reported_by"} {
		found := false
		for _, f := range validationErr.Fields {
			if f == field {
				found = true
			}
		}
		if !found {
			t.Errorf("field %q missing from %v", field, validationErr.Fields)
		}
	}
	if !strings.Contains(validationErr.Error(), "category") {
		t.Errorf("error message should name category: %s", validationErr.Error())
	}
}

func TestCreateRejectsUnknownStatus(t *testing.T) {
	repo := newFakeIncidentRepo()
	svc := NewIncidentService(repo)

	_, err := svc.Create(context.Background(), CreateIncidentInput{
		Title:       "A",
		Description: "B",
		Status:      "Exploded",
		Priority:    "Low",
		Severity:    "Minor",
		Category:    "Infra",
		ReportedBy:  "Ops",
	})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestWritesCanonicalizeEnumCasing(t *testing.T) {
	repo := newFakeIncidentRepo()
	svc := NewIncidentService(repo)

	created, err := svc.Create(context.Background(), CreateIncidentInput{
		Title:       "A",
		Description: "B",
		Status:      "open",
		Priority:    "HIGH",
		Severity:    "Minor",
		Category:    "Infra",
		ReportedBy:  "Ops",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != domain.IncidentStatusOpen || created.Priority != domain.IncidentPriorityHigh {
		t.Fatalf("enum casing not canonicalized: %s / %s", created.Status, created.Priority)
	}

	status := "in progress"
	updated, err := svc.Update(context.Background(), created.ID, UpdateIncidentInput{Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.IncidentStatusInProgress {
		t.Fatalf("update stored %q, want %q", updated.Status, domain.IncidentStatusInProgress)
	}
}

func TestCreateTrimsAndPersists(t *testing.T) {
	repo := newFakeIncidentRepo()
	svc := NewIncidentService(repo)

	assignee := "  alice  "
	incident, err := svc.Create(context.Background(), CreateIncidentInput{
		Title:       " A ",
		Description: " B ",
		Status:      "Open",
		Priority:    "Low",
		Severity:    "Minor",
		Category:    "Infra",
		ReportedBy:  "Ops",
		AssignedTo:  &assignee,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if incident.ID == 0 {
		t.Fatal("expected generated id")
	}
	if incident.Title != "A" || incident.Description != "B" {
		t.Fatalf("fields not trimmed: %+v", incident)
	}
	if incident.AssignedTo == nil || *incident.AssignedTo != "alice" {
		t.Fatalf("assignee not trimmed: %v", incident.AssignedTo)
	}
}

func TestUpdateMergesOverExistingRow(t *testing.T) {
	repo := newFakeIncidentRepo()
	svc := NewIncidentService(repo)

	created, err := svc.Create(context.Background(), CreateIncidentInput{
		Title:       "A",
		Description: "B",
		Status:      "Open",
		Priority:    "Low",
		Severity:    "Minor",
		Category:    "Infra",
		ReportedBy:  "Ops",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	status := "Closed"
	updated, err := svc.Update(context.Background(), created.ID, UpdateIncidentInput{Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.IncidentStatusClosed {
		t.Fatalf("status not updated: %s", updated.Status)
	}
	if updated.Title != "A" || updated.Priority != domain.IncidentPriorityLow || updated.Category != "Infra" {
		t.Fatalf("merge lost fields: %+v", updated)
	}
}

func TestUpdateMissingIncidentIsNotFound(t *testing.T) {
	repo := newFakeIncidentRepo()
	svc := NewIncidentService(repo)

	status := "Closed"
	_, err := svc.Update(context.Background(), 404, UpdateIncidentInput{Status: &status})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRevalidatesMergedRow(t *testing.T) {
	repo := newFakeIncidentRepo()
	svc := NewIncidentService(repo)

	created, err := svc.Create(context.Background(), CreateIncidentInput{
		Title:       "A",
		Description: "B",
		Status:      "Open",
		Priority:    "Low",
		Severity:    "Minor",
		Category:    "Infra",
		ReportedBy:  "Ops",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	blank := "   "
	_, err = svc.Update(context.Background(), created.ID, UpdateIncidentInput{Title: &blank})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validationErr.Fields) != 1 || validationErr.Fields[0] != "title" {
		t.Fatalf("unexpected fields: %v", validationErr.Fields)
	}
}

func TestDeleteMissingIncidentSucceeds(t *testing.T) {
	repo := newFakeIncidentRepo()
	svc := NewIncidentService(repo)

	if err := svc.Delete(context.Background(), 777); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
}
