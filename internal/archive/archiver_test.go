package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"opsdesk/internal/domain"
	"opsdesk/internal/repository"
	"opsdesk/internal/storage"
)

type fakeRepo struct {
	incidents []domain.Incident
}

func (f *fakeRepo) Init(ctx context.Context) error { return nil }
func (f *fakeRepo) Create(ctx context.Context, incident *domain.Incident) (int64, error) {
	return 0, nil
}
func (f *fakeRepo) Update(ctx context.Context, incident *domain.Incident) error { return nil }
func (f *fakeRepo) Delete(ctx context.Context, id int64) error                  { return nil }
func (f *fakeRepo) Get(ctx context.Context, id int64) (*domain.Incident, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeRepo) List(ctx context.Context, filter repository.ListFilter) ([]domain.Incident, int, error) {
	return nil, 0, nil
}
func (f *fakeRepo) All(ctx context.Context) ([]domain.Incident, error) {
	return f.incidents, nil
}

type fakeStorage struct {
	lastKey       string
	lastOpts      storage.UploadOptions
	payload       []byte
	deletedBucket string
	deletedPrefix string
}

func (f *fakeStorage) UploadObject(ctx context.Context, key string, body io.Reader, opts storage.UploadOptions) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.lastKey = key
	f.lastOpts = opts
	f.payload = data
	return "s3://" + opts.Bucket + "/" + opts.KeyPrefix + "/" + key, nil
}

func (f *fakeStorage) ListObjects(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeStorage) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	f.deletedBucket = bucket
	f.deletedPrefix = prefix
	return nil
}

func (f *fakeStorage) GetObjectURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	return "https://" + bucket + ".example.com/" + key + "?ttl=" + expires.String(), nil
}

func TestExportWritesSnapshotDocument(t *testing.T) {
	assignee := "alice"
	repo := &fakeRepo{incidents: []domain.Incident{
		{
			ID:          1,
			Title:       "Disk full",
			Description: "db01 out of space",
			Status:      domain.IncidentStatusOpen,
			Priority:    domain.IncidentPriorityHigh,
			Severity:    "Major",
			Category:    "Infra",
			ReportedBy:  "Ops",
			AssignedTo:  &assignee,
			CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			UpdatedAt:   time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC),
		},
	}}
	store := &fakeStorage{}

	svc := NewService(Config{Bucket: "archive-bucket", KeyPrefix: "opsdesk"}, repo, store)

	location, err := svc.Export(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if location == "" {
		t.Fatal("expected a location")
	}
	if !strings.HasPrefix(store.lastKey, "snapshot-") || !strings.HasSuffix(store.lastKey, ".json") {
		t.Fatalf("unexpected key: %s", store.lastKey)
	}
	if store.lastOpts.Bucket != "archive-bucket" || store.lastOpts.KeyPrefix != "opsdesk" {
		t.Fatalf("unexpected upload options: %+v", store.lastOpts)
	}

	var doc struct {
		Count     int `json:"count"`
		Incidents []struct {
			ID         int64   `json:"id"`
			Title      string  `json:"title"`
			Status     string  `json:"status"`
			AssignedTo *string `json:"assigned_to"`
		} `json:"incidents"`
	}
	if err := json.Unmarshal(store.payload, &doc); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if doc.Count != 1 || len(doc.Incidents) != 1 {
		t.Fatalf("unexpected snapshot: %+v", doc)
	}
	got := doc.Incidents[0]
	if got.ID != 1 || got.Title != "Disk full" || got.Status != "Open" {
		t.Fatalf("unexpected incident: %+v", got)
	}
	if got.AssignedTo == nil || *got.AssignedTo != "alice" {
		t.Fatalf("assignee lost: %v", got.AssignedTo)
	}
	if !bytes.Contains(store.payload, []byte("exported_at")) {
		t.Fatal("snapshot missing exported_at")
	}
}

func TestSnapshotURLSignsConfiguredBucket(t *testing.T) {
	svc := NewService(Config{Bucket: "archive-bucket", KeyPrefix: "opsdesk"}, &fakeRepo{}, &fakeStorage{})

	url, err := svc.SnapshotURL(context.Background(), "snapshot-20260101T000000Z.json")
	if err != nil {
		t.Fatalf("snapshot url: %v", err)
	}
	if !strings.Contains(url, "archive-bucket") || !strings.Contains(url, "snapshot-20260101T000000Z.json") {
		t.Fatalf("url missing bucket or key: %s", url)
	}
	if !strings.Contains(url, snapshotURLTTL.String()) {
		t.Fatalf("url not time-limited: %s", url)
	}
}

func TestPruneDeletesConfiguredPrefix(t *testing.T) {
	store := &fakeStorage{}
	svc := NewService(Config{Bucket: "archive-bucket", KeyPrefix: "opsdesk"}, &fakeRepo{}, store)

	if err := svc.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if store.deletedBucket != "archive-bucket" || store.deletedPrefix != "opsdesk" {
		t.Fatalf("unexpected delete target: %s/%s", store.deletedBucket, store.deletedPrefix)
	}
}

func TestStartWithoutScheduleIsNoop(t *testing.T) {
	svc := NewService(Config{Bucket: "b"}, &fakeRepo{}, &fakeStorage{})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Shutdown()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	svc := NewService(Config{Bucket: "b", Schedule: "not a cron spec"}, &fakeRepo{}, &fakeStorage{})
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
