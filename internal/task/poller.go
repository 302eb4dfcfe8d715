package task

import (
	"context"
	"time"
)

const (
	// DefaultOverviewInterval is the fast cadence re-reading the live overview.
	DefaultOverviewInterval = 8 * time.Second
	// DefaultReportInterval is the slow cadence re-reading the historical report.
	DefaultReportInterval = time.Minute
)

// Poller pairs the two refresh cadences of the dashboard: a fast one for the
// live overview and a slow one for the historical report.
type Poller struct {
	overviewScheduler *Scheduler
	reportScheduler   *Scheduler
}

// NewPoller creates a Poller over the two refresh functions. Non-positive
// intervals fall back to the defaults.
func NewPoller(overviewInterval time.Duration, reportInterval time.Duration, refreshOverview RefreshFunc, refreshReport RefreshFunc) *Poller {
	if overviewInterval <= 0 {
		overviewInterval = DefaultOverviewInterval
	}
	if reportInterval <= 0 {
		reportInterval = DefaultReportInterval
	}
	return &Poller{
		overviewScheduler: NewScheduler(overviewInterval, refreshOverview),
		reportScheduler:   NewScheduler(reportInterval, refreshReport),
	}
}

// Start launches both cadences and immediately triggers a first refresh of
// each, mirroring the initial page load.
func (poller *Poller) Start(ctx context.Context) {
	if poller == nil {
		return
	}
	poller.overviewScheduler.Start(ctx)
	poller.reportScheduler.Start(ctx)
	poller.overviewScheduler.Trigger()
	poller.reportScheduler.Trigger()
}

// TriggerOverview forces an overview refresh ahead of the next fast tick,
// e.g. right after a conflict resolution.
func (poller *Poller) TriggerOverview() {
	if poller == nil {
		return
	}
	poller.overviewScheduler.Trigger()
}

// Stop halts both cadences and waits for in-flight refreshes to return.
func (poller *Poller) Stop() {
	if poller == nil {
		return
	}
	poller.overviewScheduler.Stop()
	poller.reportScheduler.Stop()
}
