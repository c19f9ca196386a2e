// Package export writes the dashboard tables to an xlsx workbook.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/trial-progress-dashboard/internal/domain"
	"github.com/trial-progress-dashboard/internal/followup"
	"github.com/trial-progress-dashboard/internal/summary"
)

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// table is one worksheet.
type table struct {
	name   string
	header []string
	rows   [][]interface{}
}

// Sheet names in workbook order.
const (
	SheetScreening   = "Screening"
	SheetMonthly     = "Monthly Screening"
	SheetReasons     = "Exclusion Reasons"
	SheetStatus      = "In-Hospital Status"
	SheetInjuries    = "Injuries"
	SheetPreHospital = "Pre-Hospital"
	SheetSpecimens   = "Specimens"
	SheetFollowUp    = "Follow-Up"
	SheetStatuses    = "Follow-Up Statuses"
	SheetInstruments = "Follow-Up Instruments"
	SheetDataQuality = "Data Quality"
)

// FileName returns the export file name for a dashboard.
func FileName(d *summary.Dashboard) string {
	return fmt.Sprintf("trial-dashboard-%s.xlsx", d.AsOf)
}

// Workbook builds a workbook with one sheet per dashboard table. The caller
// must Close the returned file.
func Workbook(d *summary.Dashboard) (*excelize.File, error) {
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	percentStyle, err := f.NewStyle(&excelize.Style{NumFmt: 10})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create percent style: %w", err)
	}

	for i, t := range tables(d) {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.name); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", t.name, err)
		}
		if err := writeTable(f, t, headerStyle, percentStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write sheet %s: %w", t.name, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// Write streams the workbook to w.
func Write(d *summary.Dashboard, w io.Writer) error {
	f, err := Workbook(d)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteFile saves the workbook in dir and returns its path.
func WriteFile(d *summary.Dashboard, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := Workbook(d)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, FileName(d))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}
	return path, nil
}

func writeTable(f *excelize.File, t table, headerStyle, percentStyle int) error {
	if err := f.SetSheetRow(t.name, "A1", &t.header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(t.header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(t.name, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, row := range t.rows {
		values := make([]interface{}, len(row))
		var percents []int
		for col, v := range row {
			if p, ok := v.(percent); ok {
				values[col] = float64(p)
				percents = append(percents, col)
				continue
			}
			values[col] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.name, cell, &values); err != nil {
			return err
		}
		for _, col := range percents {
			pc, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(t.name, pc, pc, percentStyle); err != nil {
				return err
			}
		}
	}

	for i := range t.header {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(t.name, col, col, 18); err != nil {
			return err
		}
	}

	return f.SetPanes(t.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// percent marks a proportion cell for percentage formatting.
type percent float64

func tables(d *summary.Dashboard) []table {
	m := d.Screening.Metrics
	out := []table{{
		name:   SheetScreening,
		header: []string{"Metric", "Value"},
		rows: [][]interface{}{
			{"As of", d.AsOf},
			{"Total screened", m.TotalScreened},
			{"Proportion approached", percent(m.ProportionApproached)},
			{"Proportion excluded", percent(m.ProportionExcluded)},
			{"Refused among approached", percent(m.RefusedAmongApproach)},
			{"Total enrolled", m.TotalEnrolled},
			{"Enrolled among approached", percent(m.EnrolledAmongApproach)},
			{"Enrollment goal", m.EnrollmentGoal},
		},
	}}

	monthly := table{name: SheetMonthly, header: []string{"Month", "Screened", "Approached", "Refused", "Enrolled"}}
	for _, mc := range d.Screening.Monthly {
		monthly.rows = append(monthly.rows, []interface{}{mc.Label, mc.Screened, mc.Approached, mc.Refused, mc.Enrolled})
	}

	reasons := table{name: SheetReasons, header: []string{"Code", "Reason", "Category", "Count"}}
	for _, r := range d.Screening.Reasons {
		reasons.rows = append(reasons.rows, []interface{}{r.Code, r.Reason, string(r.Category), r.Count})
	}
	categories := make([]string, 0, len(d.Screening.Categories))
	for c := range d.Screening.Categories {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)
	for _, c := range categories {
		reasons.rows = append(reasons.rows, []interface{}{"", "Total", c, d.Screening.Categories[domain.ReasonCategory(c)]})
	}

	status := table{name: SheetStatus, header: []string{"Status", "Patients"}}
	for _, s := range d.InHospital.Distribution {
		status.rows = append(status.rows, []interface{}{string(s.Status), s.Count})
	}
	status.rows = append(status.rows, []interface{}{"Enrolled", d.InHospital.Enrolled})

	injuries := table{name: SheetInjuries, header: []string{"Code", "Category", "Patients"}}
	for _, inj := range d.InHospital.Injuries {
		injuries.rows = append(injuries.rows, []interface{}{inj.Code, inj.Category, inj.Count})
	}

	pre := table{name: SheetPreHospital, header: []string{"Assessment", "Eligible", "Completed", "Proportion", "Quality"}}
	for _, r := range d.PreHospital {
		pre.rows = append(pre.rows, []interface{}{r.Assessment, r.Eligible, r.Completed, percent(r.Proportion), string(r.Quality)})
	}

	specimens := table{name: SheetSpecimens, header: []string{"Event", "Tube", "Eligible", "Compliant", "Proportion"}}
	for _, c := range d.Specimens {
		specimens.rows = append(specimens.rows, []interface{}{string(c.Event), string(c.Tube), c.Eligible, c.Compliant, percent(c.Proportion)})
	}

	overall := table{name: SheetFollowUp, header: []string{
		"Timepoint", "Patient eligible", "Patient completed", "Patient proportion",
		"Caregiver eligible", "Caregiver completed", "Caregiver proportion",
	}}
	for _, s := range d.FollowUp.Overall {
		overall.rows = append(overall.rows, []interface{}{
			s.Timepoint,
			s.Patient.Eligible, s.Patient.Completed, percent(s.Patient.Proportion),
			s.Caregiver.Eligible, s.Caregiver.Completed, percent(s.Caregiver.Proportion),
		})
	}
	statuses := table{
		name:   SheetStatuses,
		header: []string{"Timepoint", "Status", "Patients"},
		rows:   statusRows(d.FollowUp.Overall),
	}

	instruments := table{name: SheetInstruments, header: []string{"Timepoint", "Track", "Instrument", "Attempted", "Completed", "Proportion"}}
	for _, r := range d.FollowUp.Instruments {
		instruments.rows = append(instruments.rows, []interface{}{r.Timepoint, string(r.Track), r.Label, r.Attempted, r.Completed, percent(r.Proportion)})
	}

	dq := d.DataQuality
	quality := table{
		name:   SheetDataQuality,
		header: []string{"Check", "Value"},
		rows: [][]interface{}{
			{"Candidates needing an exclusion date", len(dq.NeedsExclusionDate)},
			{"Patients needing an enrollment date", len(dq.NeedsEnrollmentDate)},
			{"Unmapped exclusion reason codes", len(dq.UnmappedReasonCodes)},
			{"Unmapped in-hospital statuses", dq.UnmappedStatuses},
			{"Unmapped follow-up statuses", dq.UnmappedFollowUps},
			{"Follow-up records without an enrolled patient", dq.OrphanFollowUps},
			{"Duplicate follow-up records", dq.DuplicateFollowUps},
			{"Discarded specimen draws", dq.DiscardedDraws},
			{"Discharge draws taken on a scheduled day", dq.DoubleDutyDraws},
		},
	}
	for _, r := range dq.Tables {
		quality.rows = append(quality.rows,
			[]interface{}{fmt.Sprintf("%s: input rows", r.Table), r.InputRows},
			[]interface{}{fmt.Sprintf("%s: dropped test rows", r.Table), r.DroppedTestRows},
			[]interface{}{fmt.Sprintf("%s: unparsable dates", r.Table), r.Unparsable},
		)
	}
	for _, id := range dq.NeedsExclusionDate {
		quality.rows = append(quality.rows, []interface{}{"Needs exclusion date", id})
	}
	for _, id := range dq.NeedsEnrollmentDate {
		quality.rows = append(quality.rows, []interface{}{"Needs enrollment date", id})
	}

	return append(out, monthly, reasons, status, injuries, pre, specimens, overall, statuses, instruments, quality)
}

// statusRows lists patient-track follow-up status counts, one row per
// timepoint and status.
func statusRows(summaries []followup.TimepointSummary) [][]interface{} {
	var rows [][]interface{}
	for _, s := range summaries {
		labels := make([]string, 0, len(s.Statuses))
		for l := range s.Statuses {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			rows = append(rows, []interface{}{s.Timepoint, l, s.Statuses[l]})
		}
	}
	return rows
}
