// Package fetch drives the portal across every chunk of a planned window and
// hands back the run records as a lazy, single-use iterator.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/carbocation/herring/ena"
	"github.com/carbocation/herring/enaquery"
	"github.com/carbocation/herring/window"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Executor runs one search query. *enaclient.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, query string, timeout time.Duration) ([]ena.Row, error)
}

// Options configure a Fetcher.
type Options struct {
	// Platform is the instrument_platform every query is restricted to.
	Platform string

	// MaxChunkDays is the widest FixedRelease window sent in one request.
	// Values < 1 disable chunking.
	MaxChunkDays int

	// Concurrency is the number of chunks fetched at once. Values < 1 mean 1.
	Concurrency int

	// Timeout is passed to every Execute; 0 defers to the executor.
	Timeout time.Duration

	Logger *zap.Logger
}

// Fetcher fetches run rows for a window.
type Fetcher struct {
	exec Executor
	opts Options
	log  *zap.Logger
}

// New builds a Fetcher around exec.
func New(exec Executor, opts Options) *Fetcher {
	if opts.Platform == "" {
		opts.Platform = enaquery.DefaultPlatform
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Fetcher{exec: exec, opts: opts, log: log}
}

// Fetch issues one query per chunk of mode. Any chunk that ultimately fails
// aborts the remaining chunks and the whole fetch: there are no partial
// results. Chunks may be fetched concurrently, but their rows are always
// concatenated in chunk order.
func (f *Fetcher) Fetch(ctx context.Context, mode window.Mode) (*RunIterator, error) {
	chunks := mode.Chunks(f.opts.MaxChunkDays)
	f.log.Info("fetching runs",
		zap.Stringer("window", mode),
		zap.Int("chunks", len(chunks)),
		zap.Int("concurrency", f.opts.Concurrency))

	results := make([][]ena.Row, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)

	for i, c := range chunks {
		g.Go(func() error {
			// Another chunk already failed.
			if err := gctx.Err(); err != nil {
				return err
			}

			rows, err := f.exec.Execute(gctx, enaquery.Build(c, f.opts.Platform), f.opts.Timeout)
			if err != nil {
				return fmt.Errorf("fetching %s window %s: %w", c.Kind, c, err)
			}

			results[i] = rows
			f.log.Info("window fetched",
				zap.Stringer("chunk", c),
				zap.Int("index", i+1),
				zap.Int("of", len(chunks)),
				zap.Int("rows", len(rows)))

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := 0
	for _, rows := range results {
		n += len(rows)
	}

	merged := make([]ena.Row, 0, n)
	for _, rows := range results {
		merged = append(merged, rows...)
	}

	return newRunIterator(mode, merged, f.log), nil
}
