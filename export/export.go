// Package export writes stored menus to spreadsheet workbooks and reads
// them back.
package export

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/komidabot/komida/menu"
)

// ErrNoData is returned when a workbook holds no menu rows.
var ErrNoData = errors.New("export: no menu rows in workbook")

var header = []any{"date", "type", "item", "price_student", "price_staff"}

// WriteWorkbook writes entries as an XLSX workbook with one sheet per
// campus, named after the campus code.
func WriteWorkbook(w io.Writer, entries []menu.Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	byCampus := make(map[string][]menu.Entry)
	for _, e := range entries {
		byCampus[e.Campus] = append(byCampus[e.Campus], e)
	}
	campuses := make([]string, 0, len(byCampus))
	for c := range byCampus {
		campuses = append(campuses, c)
	}
	sort.Strings(campuses)
	if len(campuses) == 0 {
		campuses = []string{"menu"}
	}

	price, err := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00
	if err != nil {
		return err
	}

	for i, campus := range campuses {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", campus); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(campus); err != nil {
			return fmt.Errorf("adding sheet %s: %w", campus, err)
		}

		if err := f.SetSheetRow(campus, "A1", &header); err != nil {
			return err
		}
		rows := byCampus[campus]
		menu.SortEntries(rows)
		for j, e := range rows {
			cell, err := excelize.CoordinatesToCellName(1, j+2)
			if err != nil {
				return err
			}
			row := []any{e.Date.Format(time.DateOnly), e.Label, e.Item, e.PriceStudent, e.PriceStaff}
			if err := f.SetSheetRow(campus, cell, &row); err != nil {
				return fmt.Errorf("writing %s row %d: %w", campus, j+2, err)
			}
		}
		if len(rows) > 0 {
			if err := f.SetCellStyle(campus, "D2", fmt.Sprintf("E%d", len(rows)+1), price); err != nil {
				return err
			}
		}
		f.SetColWidth(campus, "A", "B", 12)
		f.SetColWidth(campus, "C", "C", 48)
		f.SetColWidth(campus, "D", "E", 14)
	}
	f.SetActiveSheet(0)

	return f.Write(w)
}

// ReadWorkbook reads back a workbook written by WriteWorkbook. Rows that
// do not parse are skipped.
func ReadWorkbook(r io.Reader) ([]menu.Entry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var entries []menu.Entry
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for i, row := range rows {
			if i == 0 || len(row) < len(header) {
				continue
			}
			e, err := entryFromRow(sheet, row)
			if err != nil {
				continue
			}
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil, ErrNoData
	}
	menu.SortEntries(entries)
	return entries, nil
}

func entryFromRow(campus string, row []string) (menu.Entry, error) {
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(row[0]))
	if err != nil {
		return menu.Entry{}, err
	}
	student, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
	if err != nil {
		return menu.Entry{}, err
	}
	staff, err := strconv.ParseFloat(strings.TrimSpace(row[4]), 64)
	if err != nil {
		return menu.Entry{}, err
	}
	return menu.Entry{
		Date:         date,
		Campus:       campus,
		Label:        strings.TrimSpace(row[1]),
		Item:         row[2],
		PriceStudent: student,
		PriceStaff:   staff,
	}, nil
}

// ToMenu keys entries by their identity. Later duplicates win.
func ToMenu(entries []menu.Entry) menu.Menu {
	m := make(menu.Menu, len(entries))
	for _, e := range entries {
		m[e.Key()] = menu.Item{Name: e.Item, PriceStudent: e.PriceStudent, PriceStaff: e.PriceStaff}
	}
	return m
}
