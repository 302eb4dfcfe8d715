package model

// DailyChangePoint is one date of the change series from GET /report/daily.
type DailyChangePoint struct {
	Date    string `json:"d"`
	Changes int64  `json:"changes"`
}

// DailyConflictPoint is one date of the conflict series from GET /report/daily.
type DailyConflictPoint struct {
	Date      string `json:"d"`
	Conflicts int64  `json:"conflicts"`
}

// DailyPoint is one aligned date of the merged report series. Date keys use the
// YYYY-MM-DD form, so lexicographic order equals chronological order.
type DailyPoint struct {
	Date      string `json:"date"`
	Changes   int64  `json:"changes"`
	Conflicts int64  `json:"conflicts"`
}

// TableTrends carries the per-table change series from the daily report.
type TableTrends struct {
	Dates  []string           `json:"dates"`
	Series map[string][]int64 `json:"series"`
}

// DailyReportResponse is the payload of GET /report/daily.
type DailyReportResponse struct {
	Changes     []DailyChangePoint   `json:"changes"`
	Conflicts   []DailyConflictPoint `json:"conflicts"`
	TableTrends TableTrends          `json:"table_trends"`
	TableVolume map[string]int64     `json:"table_volume"`
}
