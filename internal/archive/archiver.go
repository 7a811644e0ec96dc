package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"opsdesk/internal/domain"
	"opsdesk/internal/repository"
	"opsdesk/internal/storage"
)

const snapshotURLTTL = 15 * time.Minute

// Config controls where snapshots land and how often they are taken.
type Config struct {
	Bucket    string
	KeyPrefix string
	// Schedule is a cron expression; empty disables scheduled exports.
	Schedule string
	Logger   *logrus.Logger
}

type snapshotDocument struct {
	ExportedAt time.Time          `json:"exported_at"`
	Count      int                `json:"count"`
	Incidents  []snapshotIncident `json:"incidents"`
}

type snapshotIncident struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Severity    string  `json:"severity"`
	Category    string  `json:"category"`
	ReportedBy  string  `json:"reported_by"`
	AssignedTo  *string `json:"assigned_to"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Service exports point-in-time incident snapshots to object storage.
type Service struct {
	cfg       Config
	incidents repository.IncidentRepository
	storage   storage.Service
	logger    *logrus.Logger
	cron      *cron.Cron
}

func NewService(cfg Config, incidents repository.IncidentRepository, store storage.Service) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		cfg:       cfg,
		incidents: incidents,
		storage:   store,
		logger:    logger,
	}
}

// Export snapshots every incident into a single JSON object and uploads it.
// Returns the s3 location of the written object.
func (s *Service) Export(ctx context.Context) (string, error) {
	incidents, err := s.incidents.All(ctx)
	if err != nil {
		return "", fmt.Errorf("load incidents: %w", err)
	}

	now := time.Now().UTC()
	doc := snapshotDocument{
		ExportedAt: now,
		Count:      len(incidents),
		Incidents:  make([]snapshotIncident, len(incidents)),
	}
	for i := range incidents {
		doc.Incidents[i] = toSnapshotIncident(incidents[i])
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := fmt.Sprintf("snapshot-%s.json", now.Format("20060102T150405Z"))
	location, err := s.storage.UploadObject(ctx, key, bytes.NewReader(payload), storage.UploadOptions{
		Bucket:    s.cfg.Bucket,
		KeyPrefix: s.cfg.KeyPrefix,
	})
	if err != nil {
		return "", err
	}

	s.logger.Infof("exported %d incidents to %s", len(incidents), location)
	return location, nil
}

// ListSnapshots returns the archive objects written so far.
func (s *Service) ListSnapshots(ctx context.Context) ([]storage.ObjectInfo, error) {
	return s.storage.ListObjects(ctx, s.cfg.Bucket, s.cfg.KeyPrefix)
}

// SnapshotURL returns a time-limited download link for one snapshot object.
func (s *Service) SnapshotURL(ctx context.Context, key string) (string, error) {
	return s.storage.GetObjectURL(ctx, s.cfg.Bucket, key, snapshotURLTTL)
}

// Prune removes every snapshot under the configured prefix.
func (s *Service) Prune(ctx context.Context) error {
	if err := s.storage.DeletePrefix(ctx, s.cfg.Bucket, s.cfg.KeyPrefix); err != nil {
		return err
	}
	s.logger.Infof("pruned snapshots under %s/%s", s.cfg.Bucket, s.cfg.KeyPrefix)
	return nil
}

// Start begins scheduled exports if a schedule is configured. It is a no-op
// otherwise.
func (s *Service) Start(ctx context.Context) error {
	if s.cfg.Schedule == "" {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, err := s.Export(runCtx); err != nil {
			s.logger.Warnf("scheduled export: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parse archive schedule %q: %w", s.cfg.Schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Infof("archive schedule %q active", s.cfg.Schedule)
	return nil
}

// Shutdown stops the scheduler and waits for a running export to finish.
func (s *Service) Shutdown() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func toSnapshotIncident(incident domain.Incident) snapshotIncident {
	return snapshotIncident{
		ID:          incident.ID,
		Title:       incident.Title,
		Description: incident.Description,
		Status:      string(incident.Status),
		Priority:    string(incident.Priority),
		Severity:    incident.Severity,
		Category:    incident.Category,
		ReportedBy:  incident.ReportedBy,
		AssignedTo:  incident.AssignedTo,
		CreatedAt:   incident.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   incident.UpdatedAt.Format(time.RFC3339),
	}
}
