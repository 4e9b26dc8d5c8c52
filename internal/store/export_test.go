package store

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/intake-bot/internal/domain"
)

func TestWriteCSV(t *testing.T) {
	subs := []domain.Submission{
		{
			Seq: 4, ID: "abc", UserID: "10", Username: "ivan",
			SubmittedAt: time.Date(2026, 4, 2, 15, 4, 5, 0, time.UTC),
			Answers: domain.Answers{
				FullName:             "Иванов Иван Иванович",
				MilitaryID:           false,
				Salary:               true,
				PhoneNumber:          "+79991234567",
				SalaryProblems:       "",
				LostMilitaryIDReason: `утерян, "при переезде"`,
			},
		},
		{Seq: 5, ID: "def", UserID: "11"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, subs))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, utf8BOM))

	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, utf8BOM))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ExportColumns, rows[0])

	col := func(name string) int {
		for i, c := range ExportColumns {
			if c == name {
				return i
			}
		}
		t.Fatalf("missing column %s", name)
		return -1
	}
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "2", rows[2][0])
	assert.Equal(t, "4", rows[1][col("seq")])
	assert.Equal(t, "2026-04-02T15:04:05Z", rows[1][col("timestamp")])
	assert.Equal(t, "нет", rows[1][col("military_id")])
	assert.Equal(t, "да", rows[1][col("salary")])
	assert.Equal(t, `утерян, "при переезде"`, rows[1][col("lost_military_id_reason")])
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "export_20260402_150405.csv", ExportFileName(time.Date(2026, 4, 2, 15, 4, 5, 0, time.UTC)))
}
