package service

import (
	"context"
	"fmt"
	"strings"

	"opsdesk/internal/domain"
	"opsdesk/internal/repository"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ValidationError reports every required field that was missing or blank,
// not just the first one.
type ValidationError struct {
	Fields  []string
	message string
}

func (e *ValidationError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

func invalidFieldError(field string) *ValidationError {
	return &ValidationError{
		Fields:  []string{field},
		message: fmt.Sprintf("invalid value for field: %s", field),
	}
}

// ListQuery carries raw list parameters as parsed from the request. Values
// are normalized here before they reach the repository.
type ListQuery struct {
	Page     int
	PageSize int
	Status   string
	Priority string
	Search   string
}

// ListResult is one page of incidents plus pagination metadata.
type ListResult struct {
	Items      []domain.Incident
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

type CreateIncidentInput struct {
	Title       string
	Description string
	Status      string
	Priority    string
	Severity    string
	Category    string
	ReportedBy  string
	AssignedTo  *string
}

// UpdateIncidentInput merges over an existing incident; nil fields keep
// their stored values.
type UpdateIncidentInput struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	Severity    *string
	Category    *string
	ReportedBy  *string
	AssignedTo  *string
}

// IncidentService coordinates incident reads and writes.
type IncidentService interface {
	List(ctx context.Context, query ListQuery) (*ListResult, error)
	Create(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error)
	Update(ctx context.Context, id int64, input UpdateIncidentInput) (*domain.Incident, error)
	Delete(ctx context.Context, id int64) error
}

type incidentService struct {
	incidents repository.IncidentRepository
}

func NewIncidentService(incidents repository.IncidentRepository) IncidentService {
	return &incidentService{incidents: incidents}
}

// NormalizePage clamps any non-positive page to 1.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// NormalizePageSize clamps the requested size into [1, MaxPageSize]. An
// absent page size is the caller's concern; a supplied one is never
// replaced with the default, only clamped.
func NormalizePageSize(size int) int {
	if size < 1 {
		return 1
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// TotalPages is max(ceil(total/pageSize), 1); an empty result set still has
// one (empty) page.
func TotalPages(total, pageSize int) int {
	pages := (total + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

// normalizeFilter maps the "all" sentinel (and absence) to no filter and
// drops whitespace-only search terms.
func normalizeFilter(value string) string {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "all") {
		return ""
	}
	return value
}

func (s *incidentService) List(ctx context.Context, query ListQuery) (*ListResult, error) {
	page := NormalizePage(query.Page)
	pageSize := NormalizePageSize(query.PageSize)

	filter := repository.ListFilter{
		Status:   normalizeFilter(query.Status),
		Priority: normalizeFilter(query.Priority),
		Search:   strings.TrimSpace(query.Search),
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	}

	items, total, err := s.incidents.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	totalPages := TotalPages(total, pageSize)
	// The fetch may legitimately run past the last page and return nothing;
	// the reported page is still clamped into range.
	if page > totalPages {
		page = totalPages
	}

	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *incidentService) Create(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	incident := &domain.Incident{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Status:      domain.IncidentStatus(strings.TrimSpace(input.Status)),
		Priority:    domain.IncidentPriority(strings.TrimSpace(input.Priority)),
		Severity:    strings.TrimSpace(input.Severity),
		Category:    strings.TrimSpace(input.Category),
		ReportedBy:  strings.TrimSpace(input.ReportedBy),
		AssignedTo:  trimOptional(input.AssignedTo),
	}

	if err := validateIncident(incident); err != nil {
		return nil, err
	}

	if _, err := s.incidents.Create(ctx, incident); err != nil {
		return nil, err
	}
	return incident, nil
}

func (s *incidentService) Update(ctx context.Context, id int64, input UpdateIncidentInput) (*domain.Incident, error) {
	incident, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		incident.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		incident.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		incident.Status = domain.IncidentStatus(strings.TrimSpace(*input.Status))
	}
	if input.Priority != nil {
		incident.Priority = domain.IncidentPriority(strings.TrimSpace(*input.Priority))
	}
	if input.Severity != nil {
		incident.Severity = strings.TrimSpace(*input.Severity)
	}
	if input.Category != nil {
		incident.Category = strings.TrimSpace(*input.Category)
	}
	if input.ReportedBy != nil {
		incident.ReportedBy = strings.TrimSpace(*input.ReportedBy)
	}
	if input.AssignedTo != nil {
		incident.AssignedTo = trimOptional(input.AssignedTo)
	}

	if err := validateIncident(incident); err != nil {
		return nil, err
	}

	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, err
	}
	return incident, nil
}

// Delete is idempotent: removing an id that does not exist succeeds.
func (s *incidentService) Delete(ctx context.Context, id int64) error {
	return s.incidents.Delete(ctx, id)
}

func validateIncident(incident *domain.Incident) error {
	var missing []string
	if incident.Title == "" {
		missing = append(missing, "title")
	}
	if incident.Description == "" {
		missing = append(missing, "description")
	}
	if incident.Status == "" {
		missing = append(missing, "status")
	}
	if incident.Priority == "" {
		missing = append(missing, "priority")
	}
	if incident.Severity == "" {
		missing = append(missing, "severity")
	}
	if incident.Category == "" {
		missing = append(missing, "category")
	}
	if incident.ReportedBy == "" {
		missing = append(missing, "reported_by")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}

	status, ok := domain.CanonicalStatus(string(incident.Status))
	if !ok {
		return invalidFieldError("status")
	}
	priority, ok := domain.CanonicalPriority(string(incident.Priority))
	if !ok {
		return invalidFieldError("priority")
	}
	incident.Status = status
	incident.Priority = priority
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
