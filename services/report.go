package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"car-listing-scraper/models"
	"car-listing-scraper/utils"
)

// RunOutcome is what the report needs to know about how loading ended.
type RunOutcome struct {
	Revealed   int
	Iterations int
	Partial    bool
	Err        error
}

type ReportService struct {
	logger *utils.Logger
	out    io.Writer
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger.With("report"), out: os.Stdout}
}

func (s *ReportService) Generate(records []models.ListingRecord, outcome RunOutcome) *models.RunReport {
	report := &models.RunReport{
		TotalRecords:   len(records),
		Revealed:       outcome.Revealed,
		Iterations:     outcome.Iterations,
		Partial:        outcome.Partial,
		ByFuelType:     make(map[string]int),
		ByTransmission: make(map[string]int),
	}
	if outcome.Err != nil {
		report.FailureReason = outcome.Err.Error()
	}

	for _, r := range records {
		if r.Year == "" {
			report.MissingYear++
		} else {
			if report.YearMin == "" || r.Year < report.YearMin {
				report.YearMin = r.Year
			}
			if r.Year > report.YearMax {
				report.YearMax = r.Year
			}
		}
		if r.KilometersDriven == "" {
			report.MissingKilometers++
		}
		if r.Price == "" {
			report.MissingPrice++
		}
		// Fuel and transmission keep their on-page casing in the record;
		// the breakdown groups them case-insensitively.
		if r.FuelType == "" {
			report.MissingFuelType++
		} else {
			report.ByFuelType[strings.ToLower(r.FuelType)]++
		}
		if r.Transmission != "" {
			report.ByTransmission[strings.ToLower(r.Transmission)]++
		}
	}

	s.logger.Debug("report: %d records, %d revealed, partial=%v", report.TotalRecords, report.Revealed, report.Partial)
	return report
}

func (s *ReportService) Print(r *models.RunReport) {
	overview := table.NewWriter()
	overview.SetOutputMirror(s.out)
	overview.SetTitle("Catalog scrape summary")
	overview.AppendRows([]table.Row{
		{"Records extracted", r.TotalRecords},
		{"Listings revealed", r.Revealed},
		{"Loader iterations", r.Iterations},
		{"Model years", yearRange(r)},
	})
	overview.SetStyle(table.StyleRounded)
	overview.Render()

	coverage := table.NewWriter()
	coverage.SetOutputMirror(s.out)
	coverage.AppendHeader(table.Row{"Field", "Missing", "Coverage"})
	for _, f := range []struct {
		name    string
		missing int
	}{
		{"year", r.MissingYear},
		{"kilometers_driven", r.MissingKilometers},
		{"fuel_type", r.MissingFuelType},
		{"price", r.MissingPrice},
	} {
		coverage.AppendRow(table.Row{f.name, f.missing, percent(r.TotalRecords-f.missing, r.TotalRecords)})
	}
	coverage.SetStyle(table.StyleRounded)
	coverage.Render()

	breakdown := table.NewWriter()
	breakdown.SetOutputMirror(s.out)
	breakdown.AppendHeader(table.Row{"Attribute", "Value", "Listings"})
	for _, kv := range sortedCounts(r.ByFuelType) {
		breakdown.AppendRow(table.Row{"fuel_type", kv.key, kv.count})
	}
	breakdown.AppendSeparator()
	for _, kv := range sortedCounts(r.ByTransmission) {
		breakdown.AppendRow(table.Row{"transmission", kv.key, kv.count})
	}
	breakdown.SetStyle(table.StyleRounded)
	breakdown.Render()

	if r.Partial || r.FailureReason != "" {
		fmt.Fprintf(s.out, "\n\033[1;31m  PARTIAL RUN: loading stopped early (%s).\033[0m\n", r.FailureReason)
		fmt.Fprintf(s.out, "  Only %d of the catalog's listings were captured; rerun to collect the rest.\n\n", r.TotalRecords)
	}
}

type keyCount struct {
	key   string
	count int
}

func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, v := range m {
		out = append(out, keyCount{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count == out[j].count {
			return out[i].key < out[j].key
		}
		return out[i].count > out[j].count
	})
	return out
}

func percent(n, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}

func yearRange(r *models.RunReport) string {
	switch {
	case r.YearMin == "":
		return "-"
	case r.YearMin == r.YearMax:
		return r.YearMin
	}
	return r.YearMin + " – " + r.YearMax
}
