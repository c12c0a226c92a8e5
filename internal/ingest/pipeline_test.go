package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/finagg-backend/internal/models"
)

const header = "Company,Date,Close/Last,Volume,Open,High,Low"

type fakeStore struct {
	batches [][]models.PricePoint
	failOn  int // 1-based call number that fails; 0 = never
	calls   int
}

func (f *fakeStore) SaveBatch(_ context.Context, points []models.PricePoint) error {
	f.calls++
	if f.failOn != 0 && f.calls == f.failOn {
		return errors.New("connection reset")
	}
	cp := make([]models.PricePoint, len(points))
	copy(cp, points)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeStore) sizes() []int {
	out := make([]int, len(f.batches))
	for i, b := range f.batches {
		out[i] = len(b)
	}
	return out
}

type fakeRecorder struct {
	skipped map[string]int
	flushed []int
}

func (r *fakeRecorder) LineSkipped(reason string) {
	if r.skipped == nil {
		r.skipped = map[string]int{}
	}
	r.skipped[reason]++
}

func (r *fakeRecorder) BatchFlushed(size int) { r.flushed = append(r.flushed, size) }

func validLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		day := i%28 + 1
		lines[i] = fmt.Sprintf("CO%d,01/%02d/2024,$%d.50,1000,$1,$2,$0.5", i/28, day, 10+i)
	}
	return lines
}

func source(lines ...string) *strings.Reader {
	return strings.NewReader(header + "\n" + strings.Join(lines, "\n") + "\n")
}

func TestLoad_BatchesOfBatchSize(t *testing.T) {
	const batchSize = 4
	store := &fakeStore{}
	rec := &fakeRecorder{}
	l := NewLoader(store, batchSize, nil, rec)

	sum, err := l.Load(context.Background(), source(validLines(2*batchSize+1)...), "test.csv")
	require.NoError(t, err)

	assert.Equal(t, []int{batchSize, batchSize, 1}, store.sizes())
	assert.Equal(t, []int{batchSize, batchSize, 1}, rec.flushed)
	assert.Equal(t, 2*batchSize+1, sum.Imported)
	assert.Equal(t, 3, sum.Batches)
	assert.Equal(t, 0, sum.Skipped)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, "test.csv", sum.Source)
	assert.False(t, sum.Failed())
}

func TestLoad_ExactMultipleHasNoTrailingFlush(t *testing.T) {
	store := &fakeStore{}
	l := NewLoader(store, 3, nil, nil)

	_, err := l.Load(context.Background(), source(validLines(6)...), "x")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, store.sizes())
}

func TestLoad_HeaderDiscardedUnconditionally(t *testing.T) {
	store := &fakeStore{}
	l := NewLoader(store, 10, nil, nil)

	// The first line is a perfectly valid data row but must still be dropped.
	in := strings.NewReader("AAPL,01/02/2024,$1,1,$1,$1,$1\nAAPL,01/03/2024,$2,1,$1,$1,$1\n")
	sum, err := l.Load(context.Background(), in, "x")
	require.NoError(t, err)

	require.Len(t, store.batches, 1)
	require.Len(t, store.batches[0], 1)
	assert.Equal(t, "2024-01-03", store.batches[0][0].Day())
	assert.Equal(t, 1, sum.Imported)
}

func TestLoad_SkipsAreCountedAndRunContinues(t *testing.T) {
	store := &fakeStore{}
	rec := &fakeRecorder{}
	l := NewLoader(store, 500, nil, rec)

	sum, err := l.Load(context.Background(), source(
		"AAPL,01/02/2024,$185.64,82488700,$187.15,$188.44,$183.89",
		"garbage",
		"AAPL,2024-01-03,$184.25,58414460,$184.22,$185.88,$183.43",
		"  ,01/04/2024,$1,1,$1,$1,$1",
		"AAPL,01/05/2024,$181.18,62303300,$181.99,$182.76,N/A",
	), "x")
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Imported)
	assert.Equal(t, 3, sum.Skipped)
	assert.Equal(t, 1, sum.MissingFields)
	assert.Equal(t, map[string]int{
		string(ReasonTooFewFields): 1,
		string(ReasonInvalidDate):  1,
		string(ReasonEmptyCompany): 1,
	}, sum.Reasons)
	require.Len(t, sum.Skips, 3)
	assert.Equal(t, 3, sum.Skips[0].LineNumber)
	assert.Equal(t, "garbage", sum.Skips[0].Line)
	assert.Equal(t, rec.skipped, sum.Reasons)
}

func TestLoad_StorageFailureIsFatal(t *testing.T) {
	store := &fakeStore{failOn: 2}
	l := NewLoader(store, 2, nil, nil)

	sum, err := l.Load(context.Background(), source(validLines(7)...), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageWrite))

	require.NotNil(t, sum)
	assert.Equal(t, 2, sum.Imported, "only the first batch was committed")
	assert.Equal(t, 1, sum.Batches)
	assert.True(t, sum.Failed())
	assert.Equal(t, 2, store.calls, "no flush after the failing one")
}

func TestLoad_EmptySource(t *testing.T) {
	store := &fakeStore{}
	l := NewLoader(store, 5, nil, nil)

	sum, err := l.Load(context.Background(), strings.NewReader(""), "x")
	require.NoError(t, err)
	assert.Equal(t, 0, store.calls)
	assert.Equal(t, 0, sum.Imported)

	sum, err = l.Load(context.Background(), strings.NewReader(header+"\n"), "x")
	require.NoError(t, err)
	assert.Equal(t, 0, store.calls)
	assert.Equal(t, 0, sum.Skipped)
}

type failingReader struct{ after string }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after == "" {
		return 0, errors.New("disk gone")
	}
	n := copy(p, f.after)
	f.after = f.after[n:]
	return n, nil
}

func TestLoad_SourceReadFailure(t *testing.T) {
	store := &fakeStore{}
	l := NewLoader(store, 100, nil, nil)

	sum, err := l.Load(context.Background(), &failingReader{after: header + "\nAAPL,01/02/2024,1,1,1,1,1\n"}, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceRead))
	assert.Equal(t, 0, store.calls, "partial batch is not flushed after a source failure")
	assert.Equal(t, 0, sum.Imported)
}

func TestLoad_SkipsRecordedUpToCap(t *testing.T) {
	store := &fakeStore{}
	l := NewLoader(store, 10, nil, nil)

	bad := make([]string, models.MaxRecordedSkips+20)
	for i := range bad {
		bad[i] = "bad"
	}
	sum, err := l.Load(context.Background(), source(bad...), "x")
	require.NoError(t, err)
	assert.Equal(t, len(bad), sum.Skipped)
	assert.Len(t, sum.Skips, models.MaxRecordedSkips)
}

func TestNewLoader_DefaultBatchSize(t *testing.T) {
	l := NewLoader(&fakeStore{}, 0, nil, nil)
	assert.Equal(t, DefaultBatchSize, l.BatchSize())
}

func TestLoad_OverlongLineIsSkipped(t *testing.T) {
	store := &fakeStore{}
	rec := &fakeRecorder{}
	l := NewLoader(store, 10, nil, rec)

	junk := "AAPL," + strings.Repeat("x", 2*maxLineBytes)
	sum, err := l.Load(context.Background(), source(
		"AAPL,01/02/2024,$185.64,82488700,$187.15,$188.44,$183.89",
		junk,
		"AAPL,01/03/2024,$184.25,58414460,$184.22,$185.88,$183.43",
	), "x")
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Imported)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, map[string]int{string(ReasonLineTooLong): 1}, sum.Reasons)
	require.Len(t, sum.Skips, 1)
	assert.Equal(t, 3, sum.Skips[0].LineNumber)
	assert.Len(t, sum.Skips[0].Line, tooLongPrefix)
	assert.Equal(t, 1, rec.skipped[string(ReasonLineTooLong)])

	require.Len(t, store.batches, 1)
	assert.Equal(t, "2024-01-02", store.batches[0][0].Day())
	assert.Equal(t, "2024-01-03", store.batches[0][1].Day())
}

func TestLoad_LineAtLimitIsParsed(t *testing.T) {
	store := &fakeStore{}
	l := NewLoader(store, 10, nil, nil)

	row := "AAPL,01/02/2024,$1,1,$1,$1,$1,"
	row += strings.Repeat("x", maxLineBytes-len(row))
	sum, err := l.Load(context.Background(), strings.NewReader(header+"\r\n"+row+"\r\n"), "x")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Imported)
	assert.Equal(t, 0, sum.Skipped)
}

func TestLoad_LastLineWithoutNewline(t *testing.T) {
	store := &fakeStore{}
	l := NewLoader(store, 10, nil, nil)

	sum, err := l.Load(context.Background(), strings.NewReader(header+"\nAAPL,01/02/2024,$1,1,$1,$1,$1"), "x")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Imported)
}
