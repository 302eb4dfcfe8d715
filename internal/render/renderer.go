// Package render defines the opaque rendering sink of the console. Components
// publish view models and notifications through these interfaces; how they end
// up drawn is none of their business.
package render

import "github.com/MarkoPoloResearchLab/syncdeck/internal/model"

// Severity classifies a transient notification.
type Severity string

const (
	// SeverityInfo marks an informational notification.
	SeverityInfo Severity = "info"
	// SeveritySuccess marks a completed operation.
	SeveritySuccess Severity = "success"
	// SeverityWarning marks a condition the operator should look at.
	SeverityWarning Severity = "warning"
	// SeverityDanger marks a failure.
	SeverityDanger Severity = "danger"
)

// ConflictDetailView bundles a conflict detail with its resolution visibility.
type ConflictDetailView struct {
	Detail model.ConflictDetail
	// PublicView marks the read-only token-based rendering which never
	// exposes resolution controls.
	PublicView bool
	// CanResolve is true only for an authenticated view of an OPEN conflict.
	CanResolve bool
}

// Renderer consumes view models. The terminal implementation lives in this
// package; anything else (a charting front end included) can take its place.
type Renderer interface {
	RenderDashboard(viewModel model.DashboardViewModel)
	RenderConflicts(conflicts []model.Conflict)
	RenderConflictDetail(view ConflictDetailView)
	RenderProducts(replica model.ReplicaName, products []model.Product)
	RenderTopCustomers(result model.TopCustomersResult)
	RenderSQLResult(result model.SQLRunResult)
}

// Notifier surfaces transient notifications, the console analogue of toasts.
type Notifier interface {
	Notify(message string, severity Severity)
}
