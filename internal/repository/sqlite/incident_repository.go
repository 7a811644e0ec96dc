package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"opsdesk/internal/domain"
	"opsdesk/internal/repository"
)

const createIncidentsTable = `
CREATE TABLE IF NOT EXISTS incidents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	severity TEXT NOT NULL,
	category TEXT NOT NULL,
	reported_by TEXT NOT NULL,
	assigned_to TEXT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const incidentColumns = `id, title, description, status, priority, severity, category, reported_by, assigned_to, created_at, updated_at`

type IncidentRepository struct {
	db *sql.DB
}

func NewIncidentRepository(db *sql.DB) repository.IncidentRepository {
	return &IncidentRepository{db: db}
}

func (r *IncidentRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createIncidentsTable); err != nil {
		return fmt.Errorf("create incidents table: %w", err)
	}
	return nil
}

func (r *IncidentRepository) Create(ctx context.Context, incident *domain.Incident) (int64, error) {
	now := time.Now().UTC()
	incident.CreatedAt = now
	incident.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
INSERT INTO incidents (title, description, status, priority, severity, category, reported_by, assigned_to, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		incident.Title,
		incident.Description,
		string(incident.Status),
		string(incident.Priority),
		incident.Severity,
		incident.Category,
		incident.ReportedBy,
		nullString(incident.AssignedTo),
		incident.CreatedAt,
		incident.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert incident: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("incident last insert id: %w", err)
	}
	incident.ID = id
	return id, nil
}

func (r *IncidentRepository) Update(ctx context.Context, incident *domain.Incident) error {
	incident.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE incidents
SET title=?, description=?, status=?, priority=?, severity=?, category=?, reported_by=?, assigned_to=?, updated_at=?
WHERE id=?`,
		incident.Title,
		incident.Description,
		string(incident.Status),
		string(incident.Priority),
		incident.Severity,
		incident.Category,
		incident.ReportedBy,
		nullString(incident.AssignedTo),
		incident.UpdatedAt,
		incident.ID,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("incident update rows affected: %w", err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes an incident by id. Deleting an id that does not exist is
// not an error.
func (r *IncidentRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM incidents WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	return nil
}

func (r *IncidentRepository) Get(ctx context.Context, id int64) (*domain.Incident, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+incidentColumns+`
FROM incidents
WHERE id=?`,
		id,
	)
	return scanIncident(row)
}

// List runs the filtered count-then-fetch pair. The two statements are not
// transactionally linked; the total can drift from the page under
// concurrent writes.
func (r *IncidentRepository) List(ctx context.Context, filter repository.ListFilter) ([]domain.Incident, int, error) {
	where, args := buildWhere(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM incidents` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	incidents := []domain.Incident{}
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, 0, err
		}
		incidents = append(incidents, *incident)
	}
	return incidents, total, rows.Err()
}

func (r *IncidentRepository) All(ctx context.Context) ([]domain.Incident, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+incidentColumns+`
FROM incidents
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []domain.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, *incident)
	}
	return incidents, rows.Err()
}

// buildWhere assembles the conjunctive predicate list with bound
// parameters. User input never reaches the SQL text itself.
func buildWhere(filter repository.ListFilter) (string, []any) {
	var clauses []string
	var args []any

	if filter.Status != "" {
		clauses = append(clauses, "LOWER(status) = LOWER(?)")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		clauses = append(clauses, "LOWER(priority) = LOWER(?)")
		args = append(args, filter.Priority)
	}
	if filter.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		clauses = append(clauses, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

func scanIncident(scanner interface {
	Scan(dest ...any) error
}) (*domain.Incident, error) {
	var (
		incident   domain.Incident
		status     string
		priority   string
		assignedTo sql.NullString
		createdAt  time.Time
		updatedAt  time.Time
	)

	if err := scanner.Scan(
		&incident.ID,
		&incident.Title,
		&incident.Description,
		&status,
		&priority,
		&incident.Severity,
		&incident.Category,
		&incident.ReportedBy,
		&assignedTo,
		&createdAt,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}

	incident.Status = domain.IncidentStatus(status)
	incident.Priority = domain.IncidentPriority(priority)
	incident.CreatedAt = createdAt.UTC()
	incident.UpdatedAt = updatedAt.UTC()
	if assignedTo.Valid {
		v := assignedTo.String
		incident.AssignedTo = &v
	}
	return &incident, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
