// Package importer runs one import end to end: open the source, load it, then
// invalidate cached ranges and report the outcome.
package importer

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/finagg-backend/internal/logging"
	"github.com/kjannette/finagg-backend/internal/models"
)

type Loader interface {
	Load(ctx context.Context, r io.Reader, source string) (*models.ImportSummary, error)
}

type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Purger drops cached query results. Implemented by cache.RangeCache.
type Purger interface {
	Purge()
}

// Notifier is implemented by notifications.Sender.
type Notifier interface {
	ImportFinished(ctx context.Context, sum *models.ImportSummary)
}

// RunObserver is implemented by metrics.Collector.
type RunObserver interface {
	ImportFinished(sum *models.ImportSummary)
}

type Importer struct {
	loader Loader
	opener Opener
	cache  Purger
	notify Notifier
	obs    RunObserver
	log    *zap.SugaredLogger
}

type Option func(*Importer)

func WithCache(p Purger) Option { return func(i *Importer) { i.cache = p } }

func WithNotifier(n Notifier) Option { return func(i *Importer) { i.notify = n } }

func WithObserver(o RunObserver) Option { return func(i *Importer) { i.obs = o } }

func New(loader Loader, opener Opener, log *zap.SugaredLogger, opts ...Option) *Importer {
	i := &Importer{
		loader: loader,
		opener: opener,
		log:    logging.OrNop(log).Named("importer"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run imports the file or URL at location.
func (i *Importer) Run(ctx context.Context, location string) (*models.ImportSummary, error) {
	if i.opener == nil {
		return nil, fmt.Errorf("import %s: no source opener configured", location)
	}
	rc, err := i.opener.Open(ctx, location)
	if err != nil {
		now := time.Now().UTC()
		sum := &models.ImportSummary{Source: location, StartedAt: now, FinishedAt: now, Error: err.Error()}
		i.finish(ctx, sum)
		return sum, err
	}
	defer rc.Close()
	return i.RunReader(ctx, rc, location)
}

// RunReader imports an already open source such as an HTTP request body.
func (i *Importer) RunReader(ctx context.Context, r io.Reader, source string) (*models.ImportSummary, error) {
	i.log.Infow("import started", "source", source)
	sum, err := i.loader.Load(ctx, r, source)
	i.finish(ctx, sum)
	return sum, err
}

func (i *Importer) finish(ctx context.Context, sum *models.ImportSummary) {
	// Partial imports still commit batches, so purge on failure too.
	if i.cache != nil && sum.Imported > 0 {
		i.cache.Purge()
	}
	if i.obs != nil {
		i.obs.ImportFinished(sum)
	}
	if i.notify != nil {
		i.notify.ImportFinished(context.WithoutCancel(ctx), sum)
	}
	i.log.Infow("import finished",
		"run", sum.RunID, "source", sum.Source, "imported", sum.Imported,
		"skipped", sum.Skipped, "failed", sum.Failed())
}
