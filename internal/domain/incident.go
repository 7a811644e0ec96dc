package domain

import (
	"strings"
	"time"
)

type IncidentStatus string

const (
	IncidentStatusOpen       IncidentStatus = "Open"
	IncidentStatusInProgress IncidentStatus = "In Progress"
	IncidentStatusClosed     IncidentStatus = "Closed"
)

type IncidentPriority string

const (
	IncidentPriorityLow    IncidentPriority = "Low"
	IncidentPriorityMedium IncidentPriority = "Medium"
	IncidentPriorityHigh   IncidentPriority = "High"
)

// Incident represents a tracked operational issue record.
type Incident struct {
	ID          int64
	Title       string
	Description string
	Status      IncidentStatus
	Priority    IncidentPriority
	Severity    string
	Category    string
	ReportedBy  string
	AssignedTo  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanonicalStatus matches s against the known status values
// case-insensitively and returns the enumerated spelling, so "open" is
// stored as "Open".
func CanonicalStatus(s string) (IncidentStatus, bool) {
	for _, status := range []IncidentStatus{IncidentStatusOpen, IncidentStatusInProgress, IncidentStatusClosed} {
		if strings.EqualFold(s, string(status)) {
			return status, true
		}
	}
	return "", false
}

// CanonicalPriority is the priority counterpart of CanonicalStatus.
func CanonicalPriority(p string) (IncidentPriority, bool) {
	for _, priority := range []IncidentPriority{IncidentPriorityLow, IncidentPriorityMedium, IncidentPriorityHigh} {
		if strings.EqualFold(p, string(priority)) {
			return priority, true
		}
	}
	return "", false
}
