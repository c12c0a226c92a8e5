package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kjannette/finagg-backend/internal/models"
)

func f(v float64) *float64 { return &v }

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func sampleRows() []Row {
	return Join(
		[]models.PricePoint{
			{Company: "AAPL", Date: day(2), Close: f(10)},
			{Company: "AAPL", Date: day(3), Close: f(20)},
			{Company: "AAPL", Date: day(4)},
		},
		[]models.MovingAveragePoint{{Date: day(3), Value: 15}},
		[]models.MovingAveragePoint{{Date: day(2), Value: 10}, {Date: day(3), Value: 15}},
	)
}

func TestJoin(t *testing.T) {
	rows := sampleRows()
	require.Len(t, rows, 3)

	assert.Equal(t, "2024-01-02", rows[0].Date)
	assert.Nil(t, rows[0].SMA, "window not filled yet")
	assert.Equal(t, 10.0, *rows[0].EMA)

	assert.Equal(t, 15.0, *rows[1].SMA)
	assert.Equal(t, 15.0, *rows[1].EMA)

	assert.Nil(t, rows[2].Close)
	assert.Nil(t, rows[2].SMA)
	assert.Nil(t, rows[2].EMA)
}

func TestNewSaver(t *testing.T) {
	for format, ext := range map[string]string{"csv": "csv", " JSON ": "json", "parquet": "parquet", "xlsx": "xlsx", "excel": "xlsx"} {
		s := NewSaver(format)
		require.NotNil(t, s, format)
		assert.Equal(t, ext, s.Extension())
	}
	assert.Nil(t, NewSaver("pdf"))
}

func TestCSVSaver(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSVSaver{}.Write(&buf, sampleRows()))

	assert.Equal(t, strings.Join([]string{
		"date,close,sma,ema",
		"2024-01-02,10,,10",
		"2024-01-03,20,15,15",
		"2024-01-04,,,",
		"",
	}, "\n"), buf.String())
}

func TestJSONSaver(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONSaver{}.Write(&buf, sampleRows()))

	var got []Row
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleRows(), got)
	assert.Contains(t, buf.String(), `"sma": null`)
}

func TestParquetSaver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aapl.parquet")
	require.NoError(t, SaveFile(ParquetSaver{}, sampleRows(), path))

	got, err := parquet.ReadFile[Row](path)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), got)
}

func TestXLSXSaver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aapl.xlsx")
	require.NoError(t, SaveFile(XLSXSaver{}, sampleRows(), path))

	wb, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"date", "close", "sma", "ema"}, rows[0])
	assert.Equal(t, []string{"2024-01-03", "20", "15", "15"}, rows[2])
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "AAPL.csv", FileName("AAPL", "csv"))
	assert.Equal(t, "Berkshire_Hathaway_B.parquet", FileName("Berkshire Hathaway/B", "parquet"))
}

func TestFileNames(t *testing.T) {
	names, err := FileNames([]string{"AAPL", "BRK/B", "AAPL"}, "csv")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"AAPL": "AAPL.csv", "BRK/B": "BRK_B.csv"}, names)
}

func TestFileNames_Collision(t *testing.T) {
	_, err := FileNames([]string{"A/B", "A_B"}, "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A_B.csv")

	_, err = FileNames([]string{"aapl", "AAPL"}, "json")
	require.Error(t, err)
}

type stubSource struct{ smaErr error }

func (stubSource) PriceSeries(context.Context, string, time.Time, time.Time) ([]models.PricePoint, error) {
	return []models.PricePoint{{Company: "AAPL", Date: day(2), Close: f(10)}}, nil
}

func (s stubSource) SMA(context.Context, string, time.Time, time.Time, int) ([]models.MovingAveragePoint, error) {
	return []models.MovingAveragePoint{{Date: day(2), Value: 10}}, s.smaErr
}

func (stubSource) EMA(context.Context, string, time.Time, time.Time, float64) ([]models.MovingAveragePoint, error) {
	return []models.MovingAveragePoint{{Date: day(2), Value: 10}}, nil
}

func TestBuild(t *testing.T) {
	req := Request{Company: "AAPL", Start: day(1), End: day(5), Window: 1, Smoothing: 0.5}

	rows, err := Build(context.Background(), stubSource{}, req)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10.0, *rows[0].SMA)

	boom := errors.New("boom")
	_, err = Build(context.Background(), stubSource{smaErr: boom}, req)
	assert.ErrorIs(t, err, boom)
}
