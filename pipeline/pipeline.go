// Package pipeline runs one listing end to end: plan the window, probe the
// portal, fetch every chunk and roll the runs up into study summaries.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/carbocation/herring"
	"github.com/carbocation/herring/compileinfo"
	"github.com/carbocation/herring/config"
	"github.com/carbocation/herring/enaclient"
	"github.com/carbocation/herring/fetch"
	"github.com/carbocation/herring/summary"
	"github.com/carbocation/herring/window"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Order is the row order of the result.
type Order int

const (
	// FetchOrder keeps studies in the order they were first seen.
	FetchOrder Order = iota
	// ReleaseOrder lists the most recently released studies first.
	ReleaseOrder
)

func (o Order) String() string {
	if o == ReleaseOrder {
		return "release"
	}

	return "fetch"
}

// ParseOrder reads "fetch" or "release".
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "fetch":
		return FetchOrder, nil
	case "release":
		return ReleaseOrder, nil
	}

	return FetchOrder, fmt.Errorf("%w: unknown sort order %q (want fetch or release)", herring.ErrInvalidArgument, s)
}

// Options select what one Run lists.
type Options struct {
	Window window.Options
	Order  Order

	// Now anchors rolling windows. The zero value means today.
	Now civil.Date

	Logger *zap.Logger

	// HTTPClient and Sleeper replace the transport's defaults, mostly for
	// tests.
	HTTPClient *http.Client
	Sleeper    enaclient.Sleeper
}

// Result is what a successful Run produced.
type Result struct {
	RunID   string
	Mode    window.Mode
	Studies []summary.StudySummary
	Health  enaclient.Health
	Stats   fetch.Stats
	Retries int
	Elapsed time.Duration
}

// Run performs one listing. Window problems are reported as
// herring.ErrInvalidArgument before any request is made. Any fetch failure
// aborts the run: there are no partial results.
func Run(ctx context.Context, cfg config.Config, opts Options) (*Result, error) {
	started := time.Now()

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	res := &Result{RunID: uuid.NewString()}
	log = log.With(zap.String("run_id", res.RunID))

	now := opts.Now
	if now == (civil.Date{}) {
		now = window.DateUTC(started)
	}

	mode, err := window.Plan(now, opts.Window)
	if err != nil {
		return nil, err
	}
	res.Mode = mode
	log.Info("planned window", zap.Stringer("mode", mode), zap.Stringer("kind", mode.Kind))

	clientOpts := []enaclient.Option{enaclient.WithLogger(log)}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, enaclient.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Sleeper != nil {
		clientOpts = append(clientOpts, enaclient.WithSleeper(opts.Sleeper))
	}

	client, err := enaclient.New(cfg.Client(compileinfo.Get().UserAgent()), clientOpts...)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	res.Health = client.Probe(ctx)

	it, err := fetch.New(client, cfg.FetchOptions(log)).Fetch(ctx, mode)
	if err != nil {
		return nil, err
	}

	studies, err := summary.Aggregate(it)
	if err != nil {
		return nil, err
	}

	if opts.Order == ReleaseOrder {
		summary.SortByReleaseDesc(studies)
	}

	res.Studies = studies
	res.Stats = it.Stats()
	res.Retries = client.Retries()
	res.Elapsed = time.Since(started)

	if len(studies) == 0 {
		log.Info("no runs found", zap.Stringer("mode", mode))
	}
	log.Info("listing complete",
		zap.Int("studies", len(studies)),
		zap.Int("runs", res.Stats.Yielded),
		zap.Int("retries", res.Retries),
		zap.Duration("elapsed", res.Elapsed))

	return res, nil
}
