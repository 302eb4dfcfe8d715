package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/model"
)

const (
	placeholderMissingValue = "-"
	staleSuffix             = " (stale)"

	tabwriterMinWidth = 2
	tabwriterPadding  = 2
)

// TextRenderer writes plain-text tables to an io.Writer. It is the terminal
// stand-in for the browser charting sink.
type TextRenderer struct {
	output io.Writer
}

// NewTextRenderer creates a TextRenderer over the provided writer.
func NewTextRenderer(output io.Writer) *TextRenderer {
	return &TextRenderer{output: output}
}

func (renderer *TextRenderer) tableWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(renderer.output, tabwriterMinWidth, 0, tabwriterPadding, ' ', 0)
}

func (renderer *TextRenderer) printSectionHeading(heading string) {
	fmt.Fprintf(renderer.output, "\n== %s ==\n", heading)
}

// Notify prints a severity-prefixed transient message.
func (renderer *TextRenderer) Notify(message string, severity Severity) {
	fmt.Fprintf(renderer.output, "[%s] %s\n", strings.ToUpper(string(severity)), message)
}

// RenderDashboard draws the unified overview, conflict and report panels.
func (renderer *TextRenderer) RenderDashboard(viewModel model.DashboardViewModel) {
	overviewHeading := fmt.Sprintf("Sync health: %s", viewModel.Health)
	if viewModel.Overview.Stale {
		overviewHeading += staleSuffix
	}
	renderer.printSectionHeading(overviewHeading)
	if viewModel.Overview.GeneratedAt != "" {
		fmt.Fprintf(renderer.output, "generated at %s\n", viewModel.Overview.GeneratedAt)
	}

	statsWriter := renderer.tableWriter()
	fmt.Fprintln(statsWriter, "REPLICA\tPRODUCTS\tORDERS\tCUSTOMERS\tUSERS\tPENDING\tLAST PRODUCT UPDATE")
	for _, replica := range model.ReplicaOrder {
		replicaStats, statsPresent := viewModel.Overview.DBStats[replica]
		if !statsPresent {
			continue
		}
		fmt.Fprintf(statsWriter, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			replica.Upper(),
			replicaStats.Products,
			replicaStats.Orders,
			replicaStats.Customers,
			replicaStats.Users,
			replicaStats.PendingChanges,
			stringOrPlaceholder(replicaStats.LastProductUpdate))
	}
	_ = statsWriter.Flush()

	renderer.printSectionHeading("Product matrix")
	matrixWriter := renderer.tableWriter()
	fmt.Fprintln(matrixWriter, "PRODUCT\tDIFF\tMYSQL\tPOSTGRES\tMSSQL")
	for _, matrixRow := range viewModel.Overview.ProductMatrix {
		diffMarker := ""
		if matrixRow.HasDiff {
			diffMarker = "!"
		}
		fmt.Fprintf(matrixWriter, "%s\t%s\t%s\t%s\t%s\n",
			matrixRow.ProductName,
			diffMarker,
			formatProductCell(matrixRow.PerDB[model.ReplicaMySQL]),
			formatProductCell(matrixRow.PerDB[model.ReplicaPostgres]),
			formatProductCell(matrixRow.PerDB[model.ReplicaMSSQL]))
	}
	_ = matrixWriter.Flush()

	renderer.printSectionHeading(fmt.Sprintf("Open conflicts: %d", viewModel.Overview.Conflicts.OpenCount))
	renderer.RenderConflicts(viewModel.Overview.Conflicts.Items)

	reportHeading := "Daily report"
	if viewModel.Report.Stale {
		reportHeading += staleSuffix
	}
	renderer.printSectionHeading(reportHeading)
	renderer.renderDailySeries(viewModel.Report.Daily)
	renderer.renderTableTrends(viewModel.Report.TableTrends)
	renderer.renderTableVolume(viewModel.Report.TableVolume)
}

func (renderer *TextRenderer) renderDailySeries(dailySeries []model.DailyPoint) {
	if len(dailySeries) == 0 {
		fmt.Fprintln(renderer.output, "no report data yet")
		return
	}
	seriesWriter := renderer.tableWriter()
	fmt.Fprintln(seriesWriter, "DATE\tCHANGES\tCONFLICTS")
	for _, dailyPoint := range dailySeries {
		fmt.Fprintf(seriesWriter, "%s\t%d\t%d\n", dailyPoint.Date, dailyPoint.Changes, dailyPoint.Conflicts)
	}
	_ = seriesWriter.Flush()
}

func (renderer *TextRenderer) renderTableTrends(trends model.TableTrends) {
	if len(trends.Dates) == 0 || len(trends.Series) == 0 {
		return
	}
	tableNames := make([]string, 0, len(trends.Series))
	for tableName := range trends.Series {
		tableNames = append(tableNames, tableName)
	}
	sort.Strings(tableNames)

	trendWriter := renderer.tableWriter()
	fmt.Fprintln(trendWriter, "DATE\t"+strings.ToUpper(strings.Join(tableNames, "\t")))
	for dateIndex, date := range trends.Dates {
		cells := make([]string, 0, len(tableNames)+1)
		cells = append(cells, date)
		for _, tableName := range tableNames {
			series := trends.Series[tableName]
			if dateIndex < len(series) {
				cells = append(cells, fmt.Sprintf("%d", series[dateIndex]))
			} else {
				cells = append(cells, placeholderMissingValue)
			}
		}
		fmt.Fprintln(trendWriter, strings.Join(cells, "\t"))
	}
	_ = trendWriter.Flush()
}

func (renderer *TextRenderer) renderTableVolume(tableVolume map[string]int64) {
	if len(tableVolume) == 0 {
		return
	}
	volumeWriter := renderer.tableWriter()
	fmt.Fprintln(volumeWriter, "TABLE\tROWS")
	for _, tableName := range orderedTableVolumeKeys(tableVolume) {
		fmt.Fprintf(volumeWriter, "%s\t%d\n", tableName, tableVolume[tableName])
	}
	_ = volumeWriter.Flush()
}

// RenderConflicts draws the conflict list view.
func (renderer *TextRenderer) RenderConflicts(conflicts []model.Conflict) {
	if len(conflicts) == 0 {
		fmt.Fprintln(renderer.output, "no open conflicts")
		return
	}
	conflictWriter := renderer.tableWriter()
	fmt.Fprintln(conflictWriter, "ID\tTABLE\tPK\tSOURCE\tTARGET\tSTATUS\tCREATED")
	for _, conflict := range conflicts {
		fmt.Fprintf(conflictWriter, "#%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			conflict.ConflictID,
			conflict.TableName,
			conflict.PKValue,
			conflict.SourceDB,
			conflict.TargetDB,
			conflict.Status,
			conflict.CreatedAt)
	}
	_ = conflictWriter.Flush()
}

// RenderConflictDetail draws the competing row payloads of one conflict and,
// when permitted, the available resolution actions.
func (renderer *TextRenderer) RenderConflictDetail(view ConflictDetailView) {
	detail := view.Detail
	renderer.printSectionHeading(fmt.Sprintf("Conflict #%d (%s, pk %s) %s",
		detail.ConflictID, detail.TableName, detail.PKValue, detail.Status))
	fmt.Fprintf(renderer.output, "source %s:\n%s\n", strings.ToUpper(detail.SourceDB), prettyJSON(detail.SourceRowData))
	fmt.Fprintf(renderer.output, "target %s:\n%s\n", strings.ToUpper(detail.TargetDB), prettyJSON(detail.TargetRowData))
	if view.CanResolve {
		fmt.Fprintf(renderer.output, "resolve with: console resolve %d --winner <mysql|postgres|mssql> | --patch <json>\n", detail.ConflictID)
		return
	}
	if view.PublicView {
		fmt.Fprintln(renderer.output, "read-only view")
	}
}

// RenderProducts draws one replica's product rows.
func (renderer *TextRenderer) RenderProducts(replica model.ReplicaName, products []model.Product) {
	renderer.printSectionHeading(fmt.Sprintf("%s products (%d rows)", replica.Upper(), len(products)))
	if len(products) == 0 {
		fmt.Fprintln(renderer.output, "no rows yet")
		return
	}
	productWriter := renderer.tableWriter()
	fmt.Fprintln(productWriter, "ID\tNAME\tPRICE\tSTOCK\tVERSION\tUPDATED BY\tUPDATED AT")
	for _, product := range products {
		fmt.Fprintf(productWriter, "%s\t%s\t%s\t%s\tv%d\t%s\t%s\n",
			product.ProductID,
			product.ProductName,
			formatPrice(product.Price),
			formatCount(product.Stock),
			product.RowVersion,
			valueOrPlaceholder(product.UpdatedByDB),
			stringOrPlaceholder(product.UpdatedAt))
	}
	_ = productWriter.Flush()
}

// RenderTopCustomers draws the canned analytic query result.
func (renderer *TextRenderer) RenderTopCustomers(result model.TopCustomersResult) {
	renderer.printSectionHeading(fmt.Sprintf("Top customers on %s (%d rows)", strings.ToUpper(result.DB), len(result.Rows)))
	customerWriter := renderer.tableWriter()
	fmt.Fprintln(customerWriter, "#\tCUSTOMER\tTOTAL")
	for rowIndex, customerRow := range result.Rows {
		fmt.Fprintf(customerWriter, "%d\t%s\t%.2f\n", rowIndex+1, customerRow.CustomerName, customerRow.TotalAmount)
	}
	_ = customerWriter.Flush()
	if result.SQL != "" {
		fmt.Fprintf(renderer.output, "sql: %s\n", strings.TrimSpace(result.SQL))
	}
}

// RenderSQLResult draws an ad-hoc query result.
func (renderer *TextRenderer) RenderSQLResult(result model.SQLRunResult) {
	meta := fmt.Sprintf("%s · %d rows · %d ms", strings.ToUpper(result.DB), result.RowCount, result.TookMS)
	if result.Truncated {
		meta += " · truncated"
	}
	renderer.printSectionHeading(meta)
	if len(result.Columns) == 0 {
		fmt.Fprintln(renderer.output, "no columns returned")
		return
	}
	resultWriter := renderer.tableWriter()
	fmt.Fprintln(resultWriter, strings.Join(result.Columns, "\t"))
	for _, resultRow := range result.Rows {
		cells := make([]string, 0, len(result.Columns))
		for _, columnName := range result.Columns {
			cells = append(cells, formatSQLCell(resultRow[columnName]))
		}
		fmt.Fprintln(resultWriter, strings.Join(cells, "\t"))
	}
	_ = resultWriter.Flush()
}

func formatProductCell(cell model.ProductCell) string {
	if cell.Price == nil && cell.Stock == nil && cell.RowVersion == nil {
		return placeholderMissingValue
	}
	return fmt.Sprintf("%s/%s v%s %s",
		formatPrice(cell.Price),
		formatCount(cell.Stock),
		formatCount(cell.RowVersion),
		valueOrPlaceholder(cell.UpdatedByDB))
}

func formatSQLCell(value any) string {
	switch typedValue := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typedValue
	case map[string]any, []any:
		encoded, encodeErr := json.Marshal(typedValue)
		if encodeErr != nil {
			return fmt.Sprint(typedValue)
		}
		return string(encoded)
	default:
		return fmt.Sprint(typedValue)
	}
}

func formatPrice(price *float64) string {
	if price == nil {
		return placeholderMissingValue
	}
	return fmt.Sprintf("%.2f", *price)
}

func formatCount(count *int64) string {
	if count == nil {
		return placeholderMissingValue
	}
	return fmt.Sprintf("%d", *count)
}

func stringOrPlaceholder(value *string) string {
	if value == nil || *value == "" {
		return placeholderMissingValue
	}
	return *value
}

func valueOrPlaceholder(value string) string {
	if value == "" {
		return placeholderMissingValue
	}
	return value
}

func prettyJSON(document map[string]any) string {
	encoded, encodeErr := json.MarshalIndent(document, "", "  ")
	if encodeErr != nil {
		return fmt.Sprint(document)
	}
	return string(encoded)
}

func orderedTableVolumeKeys(tableVolume map[string]int64) []string {
	// Fixed display order first, then anything else the backend reports.
	knownOrder := []string{"users", "customers", "products", "orders", "order_items", "change_log", "conflicts"}
	ordered := make([]string, 0, len(tableVolume))
	seen := make(map[string]struct{}, len(tableVolume))
	for _, tableName := range knownOrder {
		if _, present := tableVolume[tableName]; present {
			ordered = append(ordered, tableName)
			seen[tableName] = struct{}{}
		}
	}
	remaining := make([]string, 0, len(tableVolume))
	for tableName := range tableVolume {
		if _, alreadyOrdered := seen[tableName]; !alreadyOrdered {
			remaining = append(remaining, tableName)
		}
	}
	sort.Strings(remaining)
	return append(ordered, remaining...)
}
