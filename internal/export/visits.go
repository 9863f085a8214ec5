package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"omnitoken/clinic-service/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"

	sheetName = "Visits"
)

var ErrUnknownFormat = errors.New("unknown export format")

var columns = []string{
	"Token", "Patient", "Phone", "Email", "Age", "Gender",
	"Group", "Doctor", "Status", "Registered", "Visit Start", "Visit End", "Consult (min)",
}

// Lookup resolves display names for the rows.
type Lookup struct {
	Groups  map[string]string
	Doctors map[string]string
}

// NewLookup indexes group and user names from a snapshot.
func NewLookup(snap *models.Snapshot) Lookup {
	l := Lookup{
		Groups:  make(map[string]string, len(snap.Groups)),
		Doctors: make(map[string]string),
	}
	for _, g := range snap.Groups {
		l.Groups[g.ID] = g.Name
	}
	for _, u := range snap.Users {
		if u.Role == models.RoleDoctor {
			l.Doctors[u.ID] = u.Name
		}
	}
	return l
}

// ContentType returns the MIME type for a format.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Visits writes one row per token in the requested format.
func Visits(w io.Writer, format string, tokens []models.Token, lookup Lookup) error {
	switch format {
	case FormatXLSX, "":
		return writeXLSX(w, tokens, lookup)
	case FormatCSV:
		return writeCSV(w, tokens, lookup)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

func row(t models.Token, lookup Lookup) []string {
	consult := ""
	if t.VisitStartTime != nil && t.VisitEndTime != nil {
		consult = strconv.Itoa(int(t.VisitEndTime.Sub(*t.VisitStartTime) / time.Minute))
	}
	email := t.PatientData.Email
	if email == "" {
		email = t.PatientEmail
	}
	return []string{
		t.DisplayNumber(),
		t.PatientName,
		t.PatientData.Phone,
		email,
		t.PatientData.Age,
		t.PatientData.Gender,
		lookup.Groups[t.GroupID],
		lookup.Doctors[t.DoctorID],
		t.Status,
		formatTime(&t.Timestamp),
		formatTime(t.VisitStartTime),
		formatTime(t.VisitEndTime),
		consult,
	}
}

func formatTime(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format("2006-01-02 15:04")
}

func writeCSV(w io.Writer, tokens []models.Token, lookup Lookup) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, t := range tokens {
		if err := cw.Write(row(t, lookup)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, tokens []models.Token, lookup Lookup) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := setRow(f, 1, columns); err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		end, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(sheetName, "A1", end, style)
	}

	for i, t := range tokens {
		if err := setRow(f, i+2, row(t, lookup)); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func setRow(f *excelize.File, rowNum int, values []string) error {
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, val); err != nil {
			return err
		}
	}
	return nil
}
