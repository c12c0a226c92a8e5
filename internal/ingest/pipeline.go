package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjannette/finagg-backend/internal/logging"
	"github.com/kjannette/finagg-backend/internal/models"
)

const (
	DefaultBatchSize = 500
	maxLineBytes     = 1 << 20
	tooLongPrefix    = 80
)

var (
	ErrStorageWrite = errors.New("storage write failed")
	ErrSourceRead   = errors.New("source read failed")
)

// BatchWriter is the write side of the price store.
type BatchWriter interface {
	SaveBatch(ctx context.Context, points []models.PricePoint) error
}

// Recorder receives per-run counters. Implemented by metrics.Collector.
type Recorder interface {
	LineSkipped(reason string)
	BatchFlushed(size int)
}

type Loader struct {
	store     BatchWriter
	batchSize int
	log       *zap.SugaredLogger
	rec       Recorder
}

func NewLoader(store BatchWriter, batchSize int, log *zap.SugaredLogger, rec Recorder) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader{
		store:     store,
		batchSize: batchSize,
		log:       logging.OrNop(log).Named("ingest"),
		rec:       rec,
	}
}

func (l *Loader) BatchSize() int {
	return l.batchSize
}

// Load reads r line by line, discarding the first line as a header, and writes
// valid points in batches of BatchSize. Bad lines are logged and counted.
// A storage or source failure stops the run; the returned summary is never nil
// and reports what was committed before the failure.
func (l *Loader) Load(ctx context.Context, r io.Reader, source string) (*models.ImportSummary, error) {
	sum := &models.ImportSummary{
		RunID:     uuid.NewString(),
		Source:    source,
		Reasons:   make(map[string]int),
		StartedAt: time.Now().UTC(),
	}

	err := l.run(ctx, r, sum)
	sum.FinishedAt = time.Now().UTC()
	if err != nil {
		sum.Error = err.Error()
		l.log.Errorw("import aborted",
			"run", sum.RunID, "source", source,
			"imported", sum.Imported, "skipped", sum.Skipped, "error", err)
		return sum, err
	}

	l.log.Infow("import completed",
		"run", sum.RunID, "source", source,
		"imported", sum.Imported, "skipped", sum.Skipped, "batches", sum.Batches)
	return sum, nil
}

func (l *Loader) run(ctx context.Context, r io.Reader, sum *models.ImportSummary) error {
	br := bufio.NewReaderSize(r, 64*1024)

	batch := make([]models.PricePoint, 0, l.batchSize)
	lineNo := 0

	for {
		raw, tooLong, err := readLine(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: line %d: %w", ErrSourceRead, lineNo+1, err)
		}
		lineNo++
		if lineNo == 1 {
			continue // header
		}

		line := string(raw)
		if tooLong {
			l.skip(sum, lineNo, line, ReasonLineTooLong)
			continue
		}
		res := ParseLine(line)
		if !res.OK() {
			l.skip(sum, lineNo, line, res.Skip)
			continue
		}
		if len(res.Missing) > 0 {
			sum.MissingFields += len(res.Missing)
			l.log.Debugw("numeric fields missing", "line", lineNo, "fields", res.Missing)
		}

		batch = append(batch, *res.Point)
		if len(batch) == l.batchSize {
			if err := l.flush(ctx, batch, sum); err != nil {
				return err
			}
			batch = make([]models.PricePoint, 0, l.batchSize)
		}
	}

	if len(batch) > 0 {
		return l.flush(ctx, batch, sum)
	}
	return nil
}

func (l *Loader) skip(sum *models.ImportSummary, lineNo int, line string, reason SkipReason) {
	sum.RecordSkip(lineNo, line, string(reason))
	l.log.Warnw("skipping line", "line", lineNo, "content", line, "reason", reason)
	if l.rec != nil {
		l.rec.LineSkipped(string(reason))
	}
}

// readLine returns the next line without its line ending, or io.EOF once the
// input is exhausted. A line over maxLineBytes is consumed to its end and
// reported with tooLong set; only its first tooLongPrefix bytes are returned.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	var buf []byte
	read := 0
	for {
		chunk, rerr := br.ReadSlice('\n')
		read += len(chunk)
		if !tooLong {
			buf = append(buf, chunk...)
			if len(bytes.TrimRight(buf, "\r\n")) > maxLineBytes {
				tooLong = true
				buf = buf[:tooLongPrefix]
			}
		}

		switch {
		case rerr == nil:
			return bytes.TrimRight(buf, "\r\n"), tooLong, nil
		case errors.Is(rerr, bufio.ErrBufferFull):
			continue
		case errors.Is(rerr, io.EOF):
			if read == 0 {
				return nil, false, io.EOF
			}
			return bytes.TrimRight(buf, "\r\n"), tooLong, nil
		default:
			return nil, false, rerr
		}
	}
}

func (l *Loader) flush(ctx context.Context, batch []models.PricePoint, sum *models.ImportSummary) error {
	if err := l.store.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("%w: batch %d (%d points): %w", ErrStorageWrite, sum.Batches+1, len(batch), err)
	}
	sum.Batches++
	sum.Imported += len(batch)
	if l.rec != nil {
		l.rec.BatchFlushed(len(batch))
	}
	l.log.Debugw("batch flushed", "batch", sum.Batches, "size", len(batch))
	return nil
}
