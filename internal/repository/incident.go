package repository

import (
	"context"
	"errors"

	"opsdesk/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ListFilter carries the already-normalized predicates and window for a
// list query. Empty strings mean "no filter"; Limit and Offset are assumed
// to be sane (clamping happens in the service layer).
type ListFilter struct {
	Status   string
	Priority string
	Search   string
	Limit    int
	Offset   int
}

// IncidentRepository exposes persistence operations for Incident records.
type IncidentRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, incident *domain.Incident) (int64, error)
	Update(ctx context.Context, incident *domain.Incident) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Incident, error)
	// List returns one page of matching incidents plus the total number of
	// records matching the filter regardless of the window.
	List(ctx context.Context, filter ListFilter) ([]domain.Incident, int, error)
	// All returns every incident ordered by id, for snapshot exports.
	All(ctx context.Context) ([]domain.Incident, error)
}
