package render_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/model"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/render"
)

func TestNotifyPrefixesSeverity(testingT *testing.T) {
	var output bytes.Buffer
	renderer := render.NewTextRenderer(&output)

	renderer.Notify("3 new conflicts detected, open count is now 3", render.SeverityWarning)

	require.Equal(testingT, "[WARNING] 3 new conflicts detected, open count is now 3\n", output.String())
}

func TestRenderDashboardMarksStalePanels(testingT *testing.T) {
	var output bytes.Buffer
	renderer := render.NewTextRenderer(&output)

	renderer.RenderDashboard(model.DashboardViewModel{
		Health: model.HealthDanger,
		Overview: model.OverviewPanel{
			Stale: true,
			DBStats: map[model.ReplicaName]model.ReplicaStats{
				model.ReplicaMySQL: {Products: 10, PendingChanges: 2},
			},
			Conflicts: model.ConflictSnapshot{OpenCount: 1, Items: []model.Conflict{
				{ConflictID: 3, TableName: "products", Status: model.ConflictStatusOpen},
			}},
		},
		Report: model.ReportPanel{
			Stale: true,
			Daily: []model.DailyPoint{{Date: "2026-03-01", Changes: 5, Conflicts: 1}},
		},
	})

	rendered := output.String()
	require.Contains(testingT, rendered, "Sync health: DANGER (stale)")
	require.Contains(testingT, rendered, "Daily report (stale)")
	require.Contains(testingT, rendered, "Open conflicts: 1")
	require.Contains(testingT, rendered, "MYSQL")
	require.Contains(testingT, rendered, "2026-03-01")
}

func TestRenderDashboardIncludesTableTrends(testingT *testing.T) {
	var output bytes.Buffer
	renderer := render.NewTextRenderer(&output)

	renderer.RenderDashboard(model.DashboardViewModel{
		Health: model.HealthOK,
		Report: model.ReportPanel{
			Daily: []model.DailyPoint{{Date: "2026-03-01", Changes: 5, Conflicts: 0}},
			TableTrends: model.TableTrends{
				Dates: []string{"2026-03-01", "2026-03-02"},
				Series: map[string][]int64{
					"products": {7, 9},
					// A series shorter than the date axis renders a placeholder.
					"orders": {4},
				},
			},
		},
	})

	rendered := output.String()
	require.Contains(testingT, rendered, "ORDERS")
	require.Contains(testingT, rendered, "PRODUCTS")
	trendLines := strings.Split(rendered, "\n")
	var firstDayLine, secondDayLine string
	for _, line := range trendLines {
		if strings.HasPrefix(line, "2026-03-01") && strings.Contains(line, "7") {
			firstDayLine = line
		}
		if strings.HasPrefix(line, "2026-03-02") {
			secondDayLine = line
		}
	}
	require.NotEmpty(testingT, firstDayLine)
	require.Contains(testingT, firstDayLine, "4")
	require.NotEmpty(testingT, secondDayLine)
	require.Contains(testingT, secondDayLine, "-")
	require.Contains(testingT, secondDayLine, "9")
}

func TestRenderConflictDetailShowsResolveHintOnlyWhenPermitted(testingT *testing.T) {
	detail := model.ConflictDetail{
		Conflict:      model.Conflict{ConflictID: 9, TableName: "products", PKValue: "p-1", Status: model.ConflictStatusOpen},
		SourceRowData: map[string]any{"price": 1},
		TargetRowData: map[string]any{"price": 2},
	}

	var resolvableOutput bytes.Buffer
	render.NewTextRenderer(&resolvableOutput).RenderConflictDetail(render.ConflictDetailView{Detail: detail, CanResolve: true})
	require.Contains(testingT, resolvableOutput.String(), "console resolve 9")

	var publicOutput bytes.Buffer
	render.NewTextRenderer(&publicOutput).RenderConflictDetail(render.ConflictDetailView{Detail: detail, PublicView: true})
	require.NotContains(testingT, publicOutput.String(), "console resolve")
	require.Contains(testingT, publicOutput.String(), "read-only view")
}

func TestRenderProductsShowsPlaceholdersForMissingValues(testingT *testing.T) {
	var output bytes.Buffer
	renderer := render.NewTextRenderer(&output)
	price := 12.5

	renderer.RenderProducts(model.ReplicaPostgres, []model.Product{
		{ProductID: "p-1", ProductName: "widget", Price: &price, RowVersion: 3, UpdatedByDB: "mysql"},
	})

	rendered := output.String()
	require.Contains(testingT, rendered, "POSTGRES products (1 rows)")
	require.Contains(testingT, rendered, "12.50")
	require.Contains(testingT, rendered, "-")
}

func TestRenderSQLResultFormatsNullsAndNestedValues(testingT *testing.T) {
	var output bytes.Buffer
	renderer := render.NewTextRenderer(&output)

	renderer.RenderSQLResult(model.SQLRunResult{
		DB:       "mssql",
		Columns:  []string{"id", "payload", "deleted_at"},
		Rows:     []map[string]any{{"id": "1", "payload": map[string]any{"a": float64(1)}, "deleted_at": nil}},
		RowCount: 1,
		TookMS:   4,
	})

	rendered := output.String()
	require.Contains(testingT, rendered, "MSSQL")
	require.Contains(testingT, rendered, "NULL")
	require.Contains(testingT, rendered, `{"a":1}`)
}

func TestRenderSQLResultTruncationMarker(testingT *testing.T) {
	var output bytes.Buffer
	renderer := render.NewTextRenderer(&output)

	renderer.RenderSQLResult(model.SQLRunResult{DB: "mysql", Truncated: true})

	require.True(testingT, strings.Contains(output.String(), "truncated"))
}
