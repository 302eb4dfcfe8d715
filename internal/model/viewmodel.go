package model

// HealthStatus is the single derived status of the synchronization platform.
type HealthStatus string

const (
	// HealthOK means no open conflicts and no pending change backlog.
	HealthOK HealthStatus = "OK"
	// HealthWarn means at least one replica carries a pending change backlog.
	HealthWarn HealthStatus = "WARN"
	// HealthDanger means at least one conflict is open.
	HealthDanger HealthStatus = "DANGER"
)

// OverviewPanel holds the replica stats, product matrix and conflict panels of
// the dashboard, all sourced from one overview fetch.
type OverviewPanel struct {
	GeneratedAt         string
	DBStats             map[ReplicaName]ReplicaStats
	ProductMatrix       []ProductMatrixRow
	Conflicts           ConflictSnapshot
	PendingChangesTotal int64
	TableVolume         map[string]int64
	Stale               bool
}

// ReportPanel holds the merged daily series and the table volume snapshot.
type ReportPanel struct {
	Daily       []DailyPoint
	TableTrends TableTrends
	TableVolume map[string]int64
	Stale       bool
}

// DashboardViewModel is the unified console view. It is always a pure function
// of the most recent successful fetch of each source; a failed fetch leaves the
// affected panel at its previous value, marked stale.
type DashboardViewModel struct {
	Overview OverviewPanel
	Report   ReportPanel
	Health   HealthStatus
}
