// Package export renders leaderboard snapshots as spreadsheets.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/xuri/excelize/v2"
)

// Sheet names.
const (
	LeaderboardSheet = "Leaderboard"
	InfoSheet        = "Info"
)

const statusOK = "ok"

// ContentType is the MIME type of the written workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Header is the leaderboard sheet header row.
var Header = []string{
	"Rank", "Participant ID", "Team", "Score",
	"Previous Rank", "Rank Delta", "Previous Score", "Score Delta",
	"Movement", "Status",
}

// Error kinds.
var (
	ErrNoSheet   = errors.New("workbook has no leaderboard sheet")
	ErrBadHeader = errors.New("unexpected leaderboard header")
)

// WriteXLSX writes s as a workbook with a leaderboard sheet and an info sheet.
func WriteXLSX(w io.Writer, s model.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), LeaderboardSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRow(f, LeaderboardSheet, 1, toCells(Header)); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(LeaderboardSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, e := range s.Entries {
		if err := writeRow(f, LeaderboardSheet, i+2, entryCells(e)); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(InfoSheet); err != nil {
		return fmt.Errorf("create info sheet: %w", err)
	}
	info := [][]any{
		{"Board", s.BoardID},
		{"Sequence", strconv.FormatUint(s.Sequence, 10)},
		{"Generated At", s.GeneratedAt.UTC().Format(time.RFC3339Nano)},
		{"Stale", strconv.FormatBool(s.Stale)},
		{"Last Error", s.LastError},
	}
	for i, row := range info {
		if err := writeRow(f, InfoSheet, i+1, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []any) error {
	axis, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, axis, &cells); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func entryCells(e model.RankedEntry) []any {
	status := statusOK
	var score any = e.Score
	if e.HasError() {
		status = e.ErrorState
		score = ""
	}
	return []any{
		e.Rank, e.ParticipantID, e.DisplayName, score,
		optional(e.PreviousRank), optional(e.RankDelta),
		optional(e.PreviousScore), optional(e.ScoreDelta),
		string(e.Movement()), status,
	}
}

func optional[T int | float64](v *T) any {
	if v == nil {
		return ""
	}
	return *v
}

// ReadXLSX parses a workbook written by WriteXLSX.
func ReadXLSX(r io.Reader) (model.Snapshot, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(LeaderboardSheet)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %w", ErrNoSheet, err)
	}
	if len(rows) == 0 || !headerMatches(rows[0]) {
		return model.Snapshot{}, ErrBadHeader
	}

	var s model.Snapshot
	for i, row := range rows[1:] {
		e, err := parseEntry(row)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("row %d: %w", i+2, err)
		}
		s.Entries = append(s.Entries, e)
	}

	if info, err := f.GetRows(InfoSheet); err == nil {
		if err := applyInfo(&s, info); err != nil {
			return model.Snapshot{}, err
		}
	}
	return s, nil
}

func headerMatches(row []string) bool {
	if len(row) < len(Header) {
		return false
	}
	for i, h := range Header {
		if strings.TrimSpace(row[i]) != h {
			return false
		}
	}
	return true
}

// cell returns column i of row; GetRows trims trailing empty cells.
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseEntry(row []string) (model.RankedEntry, error) {
	rank, err := strconv.Atoi(cell(row, 0))
	if err != nil {
		return model.RankedEntry{}, fmt.Errorf("invalid rank %q", cell(row, 0))
	}
	e := model.RankedEntry{
		Rank:          rank,
		ParticipantID: cell(row, 1),
		DisplayName:   cell(row, 2),
	}
	if status := cell(row, 9); status != statusOK && status != "" {
		e.ErrorState = status
	}
	if v := cell(row, 3); v != "" {
		if e.Score, err = strconv.ParseFloat(v, 64); err != nil {
			return model.RankedEntry{}, fmt.Errorf("invalid score %q", v)
		}
	}
	if e.PreviousRank, err = parseOptional(cell(row, 4), strconv.Atoi); err != nil {
		return model.RankedEntry{}, err
	}
	if e.RankDelta, err = parseOptional(cell(row, 5), strconv.Atoi); err != nil {
		return model.RankedEntry{}, err
	}
	if e.PreviousScore, err = parseOptional(cell(row, 6), parseFloat); err != nil {
		return model.RankedEntry{}, err
	}
	if e.ScoreDelta, err = parseOptional(cell(row, 7), parseFloat); err != nil {
		return model.RankedEntry{}, err
	}
	return e, nil
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func parseOptional[T any](s string, parse func(string) (T, error)) (*T, error) {
	if s == "" {
		return nil, nil
	}
	v, err := parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return &v, nil
}

func applyInfo(s *model.Snapshot, rows [][]string) error {
	for _, row := range rows {
		value := cell(row, 1)
		switch cell(row, 0) {
		case "Board":
			s.BoardID = value
		case "Sequence":
			seq, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence %q: %w", value, err)
			}
			s.Sequence = seq
		case "Generated At":
			at, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return fmt.Errorf("invalid generated at %q: %w", value, err)
			}
			s.GeneratedAt = at
		case "Stale":
			s.Stale = value == "true"
		case "Last Error":
			s.LastError = value
		}
	}
	return nil
}
