// Package report renders stored registrations as an xlsx workbook and as per-student PDF profiles.
package report

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"schoolreg/internal/students"
)

// SpreadsheetContentType is the MIME type of the workbook.
const SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RecordSource streams non-deleted records matching a filter.
type RecordSource interface {
	Each(ctx context.Context, f students.Filter, fn func(students.Student) error) error
}

type column struct {
	header string
	width  float64
	value  func(students.Student) any
}

var columns = []column{
	{"ID", 10, func(s students.Student) any { return s.ID }},
	{"First Name", 15, func(s students.Student) any { return s.FirstName }},
	{"Middle Name", 15, func(s students.Student) any { return students.Deref(s.MiddleName) }},
	{"Last Name", 15, func(s students.Student) any { return s.LastName }},
	{"Sex", 10, func(s students.Student) any { return s.Sex }},
	{"Date of Birth", 15, func(s students.Student) any { return s.DateOfBirth }},
	{"Religion", 15, func(s students.Student) any { return s.Religion }},
	{"Class", 15, func(s students.Student) any { return s.ClassEnrolled }},
	{"Parent Name", 20, func(s students.Student) any { return s.ParentName }},
	{"Parent Phone", 15, func(s students.Student) any { return s.ParentPhone }},
	{"Email", 20, func(s students.Student) any { return students.Deref(s.Email) }},
	{"Address", 30, func(s students.Student) any { return s.HomeAddress }},
	{"State", 15, func(s students.Student) any { return s.State }},
	{"LGA", 20, func(s students.Student) any { return s.LGA }},
	{"Medical Condition", 15, func(s students.Student) any { return yesNo(s.HasMedicalCondition) }},
	{"Disability", 15, func(s students.Student) any { return yesNo(s.HasDisability) }},
	{"Submitted At", 20, func(s students.Student) any { return s.SubmittedAt.UTC().Format("2006-01-02 15:04:05") }},
}

// Headers returns the spreadsheet column titles in order.
func Headers() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.header
	}
	return out
}

// WriteSpreadsheet writes one row per record from src matching f, newest first, under a
// bold shaded header row. Rows go through excelize's stream writer, which spills to disk
// instead of holding the sheet in memory.
func WriteSpreadsheet(ctx context.Context, w io.Writer, src RecordSource, f students.Filter) error {
	book := excelize.NewFile()
	defer book.Close()

	const sheet = "Students"
	if err := book.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	sw, err := book.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	headerStyle, err := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E0E0E0"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, c := range columns {
		if err := sw.SetColWidth(i+1, i+1, c.width); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: c.header}
	}
	if err := sw.SetRow("A1", header, excelize.RowOpts{StyleID: headerStyle}); err != nil {
		return fmt.Errorf("header row: %w", err)
	}

	row := 2
	err = src.Each(ctx, f, func(s students.Student) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := make([]any, len(columns))
		for i, c := range columns {
			values[i] = c.value(s)
		}
		row++
		return sw.SetRow(cell, values)
	})
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
