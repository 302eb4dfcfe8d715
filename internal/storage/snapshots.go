package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// SnapshotKindOverview identifies the cached dashboard overview payload.
	SnapshotKindOverview = "overview"
	// SnapshotKindReport identifies the cached daily report payload.
	SnapshotKindReport = "report"

	columnNameSnapshotKind = "kind"

	errorMessageMissingSnapshotKind = "storage: missing snapshot kind"
	errorMessageSaveSnapshot        = "storage: save snapshot"
	errorMessageLoadSnapshot        = "storage: load snapshot"
)

// ErrMissingSnapshotKind indicates a snapshot operation omitted the kind.
var ErrMissingSnapshotKind = errors.New(errorMessageMissingSnapshotKind)

// ErrSnapshotNotFound indicates no snapshot of the requested kind is cached yet.
var ErrSnapshotNotFound = errors.New("storage: snapshot not found")

// Snapshot is the last successfully fetched payload of one dashboard source,
// kept so a freshly launched console can render immediately while the first
// poll is still in flight.
type Snapshot struct {
	Kind      string    `gorm:"primaryKey;size:32"`
	Payload   []byte    `gorm:"not null"`
	FetchedAt time.Time `gorm:"not null"`
}

// SnapshotRepository persists dashboard source snapshots, one row per kind.
type SnapshotRepository struct {
	database *gorm.DB
}

// NewSnapshotRepository creates a SnapshotRepository over the provided database.
func NewSnapshotRepository(database *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{database: database}
}

// SaveSnapshot upserts the snapshot row of one kind.
func (repository *SnapshotRepository) SaveSnapshot(kind string, payload []byte, fetchedAt time.Time) error {
	trimmedKind := strings.TrimSpace(kind)
	if trimmedKind == "" {
		return ErrMissingSnapshotKind
	}
	snapshot := Snapshot{
		Kind:      trimmedKind,
		Payload:   payload,
		FetchedAt: fetchedAt.UTC(),
	}
	saveErr := repository.database.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: columnNameSnapshotKind}},
		UpdateAll: true,
	}).Create(&snapshot).Error
	if saveErr != nil {
		return fmt.Errorf("%s: %w", errorMessageSaveSnapshot, saveErr)
	}
	return nil
}

// LoadSnapshot returns the cached payload of one kind, or ErrSnapshotNotFound.
func (repository *SnapshotRepository) LoadSnapshot(kind string) (Snapshot, error) {
	trimmedKind := strings.TrimSpace(kind)
	if trimmedKind == "" {
		return Snapshot{}, ErrMissingSnapshotKind
	}
	var snapshot Snapshot
	loadErr := repository.database.First(&snapshot, "kind = ?", trimmedKind).Error
	if errors.Is(loadErr, gorm.ErrRecordNotFound) {
		return Snapshot{}, ErrSnapshotNotFound
	}
	if loadErr != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", errorMessageLoadSnapshot, loadErr)
	}
	return snapshot, nil
}
