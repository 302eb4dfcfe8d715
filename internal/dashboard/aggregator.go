// Package dashboard builds the unified operator view model from the sync
// backend's overview and report endpoints.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/apiclient"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/model"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/render"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/report"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/storage"
)

const (
	// DefaultOverviewLimit bounds the product matrix size requested per poll.
	DefaultOverviewLimit = 8
	// DefaultReportDays bounds the historical report window requested per poll.
	DefaultReportDays = 14

	overviewFailureMessage   = "failed to load the sync overview"
	reportFailureMessage     = "failed to load the daily report"
	newConflictMessageFormat = "%d new conflicts detected, open count is now %d"

	logEventRefreshOverview    = "refresh_overview"
	logEventRefreshReport      = "refresh_report"
	logEventSeedFromCache      = "seed_from_cache"
	logEventPersistSnapshot    = "persist_snapshot"
	logFieldCorrelationID      = "correlation_id"
	logFieldOpenConflictCount  = "open_conflict_count"
	logFieldPendingChangeTotal = "pending_changes_total"

	errorMessageMissingBackend = "dashboard: missing backend reader"
)

// ErrMissingBackend indicates the aggregator was configured without a backend reader.
var ErrMissingBackend = errors.New(errorMessageMissingBackend)

// BackendReader is the slice of the API client the aggregator consumes.
type BackendReader interface {
	Overview(ctx context.Context, limit int) (model.OverviewResponse, error)
	DailyReport(ctx context.Context, days int) (model.DailyReportResponse, error)
}

// SnapshotStore caches the last successful payload of each dashboard source.
type SnapshotStore interface {
	SaveSnapshot(kind string, payload []byte, fetchedAt time.Time) error
	LoadSnapshot(kind string) (storage.Snapshot, error)
}

// Config captures the aggregator dependencies.
type Config struct {
	Backend       BackendReader
	Notifier      render.Notifier
	Snapshots     SnapshotStore
	Logger        *zap.Logger
	OverviewLimit int
	ReportDays    int
}

// Aggregator owns the dashboard view model. The view model is always a pure
// function of the most recent successful fetch of each source; a failed fetch
// leaves the previous panel intact and only marks it stale. Drawing the view
// model is the command layer's job, through ViewModel.
type Aggregator struct {
	backend       BackendReader
	notifier      render.Notifier
	snapshots     SnapshotStore
	logger        *zap.Logger
	overviewLimit int
	reportDays    int

	stateMutex sync.Mutex
	viewModel  model.DashboardViewModel
	// lastOpenConflictCount is the baseline behind the one-shot new-conflict
	// notification: only an observed count above it fires, and every
	// observation replaces it. It starts at zero, so conflicts already open
	// at first load legitimately notify once.
	lastOpenConflictCount int64
}

// NewAggregator constructs an Aggregator from the provided configuration.
func NewAggregator(configuration Config) (*Aggregator, error) {
	if configuration.Backend == nil {
		return nil, ErrMissingBackend
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	overviewLimit := configuration.OverviewLimit
	if overviewLimit <= 0 {
		overviewLimit = DefaultOverviewLimit
	}
	reportDays := configuration.ReportDays
	if reportDays <= 0 {
		reportDays = DefaultReportDays
	}
	return &Aggregator{
		backend:       configuration.Backend,
		notifier:      configuration.Notifier,
		snapshots:     configuration.Snapshots,
		logger:        logger,
		overviewLimit: overviewLimit,
		reportDays:    reportDays,
	}, nil
}

// ViewModel returns the current dashboard view model.
func (aggregator *Aggregator) ViewModel() model.DashboardViewModel {
	aggregator.stateMutex.Lock()
	defer aggregator.stateMutex.Unlock()
	return aggregator.viewModel
}

// RefreshOverview re-reads the combined overview and, on success, replaces the
// overview panels atomically. Expired credentials propagate untouched so the
// caller can redirect; any other failure becomes a transient notification and
// the previous panels survive, marked stale.
func (aggregator *Aggregator) RefreshOverview(ctx context.Context) error {
	correlationID := uuid.NewString()

	overview, fetchErr := aggregator.backend.Overview(ctx, aggregator.overviewLimit)
	if fetchErr != nil {
		aggregator.recordPanelFailure(logEventRefreshOverview, correlationID, overviewFailureMessage, fetchErr, func(viewModel *model.DashboardViewModel) {
			viewModel.Overview.Stale = true
		})
		return fetchErr
	}

	aggregator.stateMutex.Lock()
	aggregator.viewModel.Overview = model.OverviewPanel{
		GeneratedAt:         overview.GeneratedAt,
		DBStats:             overview.DBStats,
		ProductMatrix:       overview.ProductMatrix,
		Conflicts:           overview.Conflicts,
		PendingChangesTotal: overview.PendingChangesTotal,
		TableVolume:         overview.TableVolume,
	}
	aggregator.viewModel.Health = deriveHealth(overview.Conflicts.OpenCount, overview.PendingChangesTotal)
	newConflictDelta := overview.Conflicts.OpenCount - aggregator.lastOpenConflictCount
	aggregator.lastOpenConflictCount = overview.Conflicts.OpenCount
	aggregator.stateMutex.Unlock()

	aggregator.logger.Info(logEventRefreshOverview,
		zap.String(logFieldCorrelationID, correlationID),
		zap.Int64(logFieldOpenConflictCount, overview.Conflicts.OpenCount),
		zap.Int64(logFieldPendingChangeTotal, overview.PendingChangesTotal))

	if newConflictDelta > 0 && aggregator.notifier != nil {
		aggregator.notifier.Notify(
			fmt.Sprintf(newConflictMessageFormat, newConflictDelta, overview.Conflicts.OpenCount),
			render.SeverityWarning)
	}

	aggregator.persistSnapshot(storage.SnapshotKindOverview, overview)
	return nil
}

// RefreshReport re-reads the daily report, merges the two date-keyed series
// and replaces the report panel. The no-wipe rule of RefreshOverview applies.
func (aggregator *Aggregator) RefreshReport(ctx context.Context) error {
	correlationID := uuid.NewString()

	dailyReport, fetchErr := aggregator.backend.DailyReport(ctx, aggregator.reportDays)
	if fetchErr != nil {
		aggregator.recordPanelFailure(logEventRefreshReport, correlationID, reportFailureMessage, fetchErr, func(viewModel *model.DashboardViewModel) {
			viewModel.Report.Stale = true
		})
		return fetchErr
	}

	aggregator.stateMutex.Lock()
	aggregator.viewModel.Report = model.ReportPanel{
		Daily:       report.MergeDailySeries(dailyReport.Changes, dailyReport.Conflicts),
		TableTrends: dailyReport.TableTrends,
		TableVolume: dailyReport.TableVolume,
	}
	aggregator.stateMutex.Unlock()

	aggregator.logger.Info(logEventRefreshReport, zap.String(logFieldCorrelationID, correlationID))

	aggregator.persistSnapshot(storage.SnapshotKindReport, dailyReport)
	return nil
}

// SeedFromCache restores both panels from the local snapshot cache, marked
// stale. The new-conflict baseline is untouched: cached conflicts still
// notify once when the first live poll confirms them.
func (aggregator *Aggregator) SeedFromCache() {
	if aggregator.snapshots == nil {
		return
	}

	if snapshot, loadErr := aggregator.snapshots.LoadSnapshot(storage.SnapshotKindOverview); loadErr == nil {
		var overview model.OverviewResponse
		if decodeErr := json.Unmarshal(snapshot.Payload, &overview); decodeErr == nil {
			aggregator.stateMutex.Lock()
			aggregator.viewModel.Overview = model.OverviewPanel{
				GeneratedAt:         overview.GeneratedAt,
				DBStats:             overview.DBStats,
				ProductMatrix:       overview.ProductMatrix,
				Conflicts:           overview.Conflicts,
				PendingChangesTotal: overview.PendingChangesTotal,
				TableVolume:         overview.TableVolume,
				Stale:               true,
			}
			aggregator.viewModel.Health = deriveHealth(overview.Conflicts.OpenCount, overview.PendingChangesTotal)
			aggregator.stateMutex.Unlock()
			aggregator.logger.Info(logEventSeedFromCache, zap.String("kind", storage.SnapshotKindOverview))
		}
	}

	if snapshot, loadErr := aggregator.snapshots.LoadSnapshot(storage.SnapshotKindReport); loadErr == nil {
		var dailyReport model.DailyReportResponse
		if decodeErr := json.Unmarshal(snapshot.Payload, &dailyReport); decodeErr == nil {
			aggregator.stateMutex.Lock()
			aggregator.viewModel.Report = model.ReportPanel{
				Daily:       report.MergeDailySeries(dailyReport.Changes, dailyReport.Conflicts),
				TableTrends: dailyReport.TableTrends,
				TableVolume: dailyReport.TableVolume,
				Stale:       true,
			}
			aggregator.stateMutex.Unlock()
			aggregator.logger.Info(logEventSeedFromCache, zap.String("kind", storage.SnapshotKindReport))
		}
	}
}

func (aggregator *Aggregator) recordPanelFailure(logEvent string, correlationID string, fallbackMessage string, fetchErr error, markStale func(*model.DashboardViewModel)) {
	aggregator.stateMutex.Lock()
	markStale(&aggregator.viewModel)
	aggregator.stateMutex.Unlock()

	aggregator.logger.Warn(logEvent,
		zap.String(logFieldCorrelationID, correlationID),
		zap.Error(fetchErr))

	// Expired credentials are handled by redirecting, never by an inline
	// failure message; a late result is simply never applied.
	if apiclient.IsAuthExpired(fetchErr) || aggregator.notifier == nil {
		return
	}

	var remoteErr *apiclient.RemoteError
	if errors.As(fetchErr, &remoteErr) {
		aggregator.notifier.Notify(remoteErr.Message(), render.SeverityDanger)
		return
	}
	aggregator.notifier.Notify(fallbackMessage, render.SeverityDanger)
}

func (aggregator *Aggregator) persistSnapshot(kind string, payload any) {
	if aggregator.snapshots == nil {
		return
	}
	encodedPayload, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		aggregator.logger.Warn(logEventPersistSnapshot, zap.Error(encodeErr))
		return
	}
	if saveErr := aggregator.snapshots.SaveSnapshot(kind, encodedPayload, time.Now()); saveErr != nil {
		aggregator.logger.Warn(logEventPersistSnapshot, zap.Error(saveErr))
	}
}

func deriveHealth(openConflictCount int64, pendingChangesTotal int64) model.HealthStatus {
	if openConflictCount > 0 {
		return model.HealthDanger
	}
	if pendingChangesTotal > 0 {
		return model.HealthWarn
	}
	return model.HealthOK
}
