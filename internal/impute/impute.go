// Package impute fills missing panel values with group means, from the
// narrowest peer group to all countries.
package impute

import (
	"go.uber.org/zap"

	"worldpanel/internal/panel"
)

// Stage is one pass of the cascade. group returns the partition key of a
// row; rows without a key do not take part in the stage.
type Stage struct {
	Name   string
	Source panel.Source
	group  func(panel.Attributes) (string, bool)
}

func ByRegionAndIncome() Stage {
	return Stage{
		Name:   "region_income",
		Source: panel.SourceRegionIncome,
		group: func(a panel.Attributes) (string, bool) {
			if a.Region == "" || a.IncomeGroup == "" {
				return "", false
			}
			return a.Region + "\x00" + a.IncomeGroup, true
		},
	}
}

func ByIncome() Stage {
	return Stage{
		Name:   "income",
		Source: panel.SourceIncome,
		group: func(a panel.Attributes) (string, bool) {
			return a.IncomeGroup, a.IncomeGroup != ""
		},
	}
}

func ByRegion() Stage {
	return Stage{
		Name:   "region",
		Source: panel.SourceRegion,
		group: func(a panel.Attributes) (string, bool) {
			return a.Region, a.Region != ""
		},
	}
}

func Global() Stage {
	return Stage{
		Name:   "global",
		Source: panel.SourceGlobal,
		group: func(panel.Attributes) (string, bool) {
			return "", true
		},
	}
}

// Cascade is the fallback order: region+income, income, region, all countries.
func Cascade() []Stage {
	return []Stage{ByRegionAndIncome(), ByIncome(), ByRegion(), Global()}
}

type StageReport struct {
	Stage         string
	MissingBefore int
	MissingAfter  int
	Filled        int
}

type Report struct {
	Stages []StageReport
	// Exhausted lists columns with no value in any row after the last stage.
	Exhausted []string
}

// Apply runs one stage. The result is a new table; cells that already hold a
// value keep it and its source.
func (s Stage) Apply(t *panel.Table) (*panel.Table, StageReport) {
	m := t.Values()

	partitions := make(map[string][]int)
	order := make([]string, 0)
	for i, attrs := range m.Attributes {
		key, ok := s.group(attrs)
		if !ok {
			continue
		}
		if _, seen := partitions[key]; !seen {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], i)
	}

	estimates := panel.New(m.Columns...)
	filled := 0
	for _, key := range order {
		rows := partitions[key]
		for j, column := range m.Columns {
			mean, ok := m.ColumnMean(rows, j)
			if !ok {
				continue
			}
			for _, i := range rows {
				if t.Cell(m.Keys[i], column).Valid {
					continue
				}
				estimates.AddRow(m.Keys[i], m.Attributes[i])
				// each (row, column) is visited once per stage
				_ = estimates.Set(m.Keys[i], column, mean, s.Source)
				filled++
			}
		}
	}

	out := panel.Combine(t, estimates)
	return out, StageReport{
		Stage:         s.Name,
		MissingBefore: t.Missing(),
		MissingAfter:  out.Missing(),
		Filled:        filled,
	}
}

// Run applies the stages in order and reports columns that stay empty.
func Run(t *panel.Table, stages []Stage) (*panel.Table, Report) {
	log := zap.L().With(zap.String("component", "impute"))

	var report Report
	current := t
	for _, stage := range stages {
		next, stageReport := stage.Apply(current)
		log.Info("imputation stage complete",
			zap.String("stage", stageReport.Stage),
			zap.Int("filled", stageReport.Filled),
			zap.Int("missing_before", stageReport.MissingBefore),
			zap.Int("missing_after", stageReport.MissingAfter),
		)
		report.Stages = append(report.Stages, stageReport)
		current = next
	}

	for _, column := range current.Columns() {
		if current.IsDerived(column) || current.Len() == 0 {
			continue
		}
		if current.Filled(column) == 0 {
			report.Exhausted = append(report.Exhausted, column)
			log.Warn("column has no data in any country", zap.String("column", column))
		}
	}
	return current, report
}
