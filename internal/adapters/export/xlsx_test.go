package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func sampleSnapshot() model.Snapshot {
	return model.Snapshot{
		BoardID:     "finals",
		Sequence:    7,
		GeneratedAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Stale:       true,
		LastError:   "feed unavailable",
		Entries: []model.RankedEntry{
			{Rank: 1, ParticipantID: "t1", DisplayName: "Owls", Score: 245.5, PreviousRank: intPtr(2), RankDelta: intPtr(1), PreviousScore: floatPtr(200), ScoreDelta: floatPtr(45.5)},
			{Rank: 2, ParticipantID: "t2", DisplayName: "Foxes", Score: 190},
			{Rank: 3, ParticipantID: "t3", DisplayName: "Crows", ErrorState: model.ErrorStateMissingScore, PreviousRank: intPtr(1), RankDelta: intPtr(-2)},
		},
	}
}

func TestWriteXLSX_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleSnapshot()))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{LeaderboardSheet, InfoSheet}, f.GetSheetList())

	rows, err := f.GetRows(LeaderboardSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"1", "t1", "Owls", "245.5", "2", "1", "200", "45.5", "up", "ok"}, rows[1])
	assert.Equal(t, "new", rows[2][8])
	assert.Equal(t, "", rows[3][3], "errored entries have no score")
	assert.Equal(t, model.ErrorStateMissingScore, rows[3][9])
}

func TestXLSX_ReadBack(t *testing.T) {
	want := sampleSnapshot()

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, want))

	got, err := ReadXLSX(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestXLSX_EmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, model.Snapshot{BoardID: "empty", GeneratedAt: time.Unix(0, 0).UTC()}))

	got, err := ReadXLSX(&buf)
	require.NoError(t, err)
	assert.Equal(t, "empty", got.BoardID)
	assert.Empty(t, got.Entries)
}

func TestReadXLSX_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) []byte
		want  error
	}{
		{
			name: "missing leaderboard sheet",
			build: func(t *testing.T) []byte {
				return workbook(t, "Sheet1", [][]any{{"x"}})
			},
			want: ErrNoSheet,
		},
		{
			name: "wrong header",
			build: func(t *testing.T) []byte {
				return workbook(t, LeaderboardSheet, [][]any{{"Place", "Team"}})
			},
			want: ErrBadHeader,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadXLSX(bytes.NewReader(tt.build(t)))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("not a workbook", func(t *testing.T) {
		_, err := ReadXLSX(bytes.NewReader([]byte("rank,team\n1,owls\n")))
		assert.Error(t, err)
	})

	t.Run("invalid rank", func(t *testing.T) {
		header := toCells(Header)
		data := workbook(t, LeaderboardSheet, [][]any{header, {"first", "t1", "Owls", 10}})
		_, err := ReadXLSX(bytes.NewReader(data))
		assert.ErrorContains(t, err, "invalid rank")
	})
}

func workbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	if sheet != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheet))
	}
	for idx, row := range rows {
		axis, err := excelize.CoordinatesToCellName(1, idx+1)
		require.NoError(t, err)
		cells := row
		require.NoError(t, f.SetSheetRow(sheet, axis, &cells))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())
	return buf.Bytes()
}
