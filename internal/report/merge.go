// Package report aligns the independently keyed daily change and conflict
// series of the sync backend into one ordered series for the rendering sink.
package report

import (
	"sort"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/model"
)

// MergeDailySeries joins the change series and the conflict series into one
// ordered series. Every date present in either input appears exactly once in
// the output, with the missing counterpart defaulting to zero. Dates are
// YYYY-MM-DD strings, so ascending lexicographic order is chronological order.
func MergeDailySeries(changeSeries []model.DailyChangePoint, conflictSeries []model.DailyConflictPoint) []model.DailyPoint {
	pointsByDate := make(map[string]*model.DailyPoint, len(changeSeries)+len(conflictSeries))

	for _, changePoint := range changeSeries {
		if changePoint.Date == "" {
			continue
		}
		pointsByDate[changePoint.Date] = &model.DailyPoint{
			Date:    changePoint.Date,
			Changes: changePoint.Changes,
		}
	}

	for _, conflictPoint := range conflictSeries {
		if conflictPoint.Date == "" {
			continue
		}
		mergedPoint, dateSeen := pointsByDate[conflictPoint.Date]
		if !dateSeen {
			mergedPoint = &model.DailyPoint{Date: conflictPoint.Date}
			pointsByDate[conflictPoint.Date] = mergedPoint
		}
		mergedPoint.Conflicts = conflictPoint.Conflicts
	}

	orderedDates := make([]string, 0, len(pointsByDate))
	for date := range pointsByDate {
		orderedDates = append(orderedDates, date)
	}
	sort.Strings(orderedDates)

	mergedSeries := make([]model.DailyPoint, 0, len(orderedDates))
	for _, date := range orderedDates {
		mergedSeries = append(mergedSeries, *pointsByDate[date])
	}
	return mergedSeries
}
