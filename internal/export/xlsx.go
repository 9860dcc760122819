package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Bendy545/charging-stations/internal/models"
	"github.com/Bendy545/charging-stations/internal/service"
)

// ContentType MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	SheetSummary  = "Summary"
	SheetDaily    = "Daily"
	SheetStations = "Stations"
	SheetSessions = "Sessions"
)

var (
	dailyHeader    = []string{"Date", "Consumption (kWh)", "Delivered (kWh)", "Loss (kWh)", "Loss (%)", "Records"}
	stationsHeader = []string{"Code", "Name", "Location", "Records", "Consumption (kWh)", "Delivered (kWh)", "Loss (kWh)", "Avg Loss (%)", "Efficiency (%)"}
	sessionsHeader = []string{"Date", "Sessions", "Delivered (kWh)"}
)

// WriteReport renders rep as a workbook with one sheet per view.
func WriteReport(w io.Writer, rep *service.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeSummary(f, rep); err != nil {
		return err
	}

	daily := make([][]any, 0, len(rep.DailySeries))
	for _, p := range rep.DailySeries {
		daily = append(daily, []any{p.Date, p.ConsumptionKWh, p.DeliveredKWh, p.LossKWh, p.LossPercentage, p.Records})
	}
	if err := writeTable(f, SheetDaily, dailyHeader, daily, headerStyle); err != nil {
		return err
	}

	stations := make([][]any, 0, len(rep.Stations))
	for _, s := range rep.Stations {
		row := []any{s.Station.StationCode, s.Station.StationName, deref(s.Station.Location)}
		if st := s.Statistics; st != nil {
			row = append(row, st.RecordCount, st.TotalConsumptionKWh, st.TotalDeliveredKWh, st.TotalLossKWh, st.AvgLossPercentage, percentCell(st.Efficiency))
		} else {
			row = append(row, 0, "", "", "", "", "")
		}
		stations = append(stations, row)
	}
	if err := writeTable(f, SheetStations, stationsHeader, stations, headerStyle); err != nil {
		return err
	}

	sessions := make([][]any, 0, len(rep.SessionActivity))
	for _, a := range rep.SessionActivity {
		sessions = append(sessions, []any{a.Date, a.SessionCount, a.TotalKWh})
	}
	if err := writeTable(f, SheetSessions, sessionsHeader, sessions, headerStyle); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, rep *service.Report) error {
	rows := [][]any{
		{"Scope", rep.Scope},
		{"Start", boundCell(rep.StartDate)},
		{"End", boundCell(rep.EndDate)},
	}
	if rep.Station != nil {
		rows = append(rows, []any{"Station", rep.Station.StationCode + " " + rep.Station.StationName})
	}
	if s := rep.Summary; s != nil {
		rows = append(rows,
			[]any{"Records", s.RecordCount},
			[]any{"Total consumption (kWh)", s.TotalConsumptionKWh},
			[]any{"Total delivered (kWh)", s.TotalDeliveredKWh},
			[]any{"Total loss (kWh)", s.TotalLossKWh},
			[]any{"Average loss (%)", s.AvgLossPercentage},
			[]any{"Efficiency (%)", percentCell(s.Efficiency)},
		)
	} else {
		rows = append(rows, []any{"Records", "no data"})
	}
	rows = append(rows, []any{"Sessions", rep.SessionCount})
	if rep.PeakLossDay != nil {
		rows = append(rows, []any{"Peak loss day", rep.PeakLossDay.PeriodStart.Format("2006-01-02") + fmt.Sprintf(" (%.2f kWh)", rep.PeakLossDay.LossKWh)})
	}
	if rep.Partial {
		for _, fl := range rep.Failures {
			rows = append(rows, []any{"Unavailable", fl.Stream + ": " + fl.Error})
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(SheetSummary, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 26); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return f.SetColWidth(SheetSummary, "B", "B", 40)
}

func writeTable(f *excelize.File, sheet string, header []string, rows [][]any, headerStyle int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

// percentCell leaves undefined percentages blank instead of NaN.
func percentCell(p models.OptionalPercent) any {
	if v, ok := p.Get(); ok {
		return v
	}
	return ""
}

func boundCell(t *time.Time) string {
	if t == nil {
		return "unbounded"
	}
	return t.Format("2006-01-02 15:04:05")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
