package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/storage"
	"github.com/carbocation/herring"
	"github.com/carbocation/herring/config"
	"github.com/carbocation/herring/export"
	"github.com/carbocation/herring/pipeline"
	"github.com/carbocation/herring/window"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type listFlags struct {
	weeks int
	from  string
	to    string
	order string

	csvPath  string
	jsonPath string
	htmlPath string
	bigQuery string
}

var list listFlags

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List studies with Oxford Nanopore runs in a date window",
	Example: `  herring list --weeks 4
  herring list --from 2024-01-01 --to 2024-03-31 --csv studies.csv --html gs://bucket/studies.html
  herring list --weeks 8 --sort release --bigquery my-project.ont.studies`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), list, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	f := listCmd.Flags()
	f.IntVar(&list.weeks, "weeks", 8, "Window length in weeks. Ignored when --to is given.")
	f.StringVar(&list.from, "from", "", "Fixed window start date, YYYY-MM-DD. Without it the window rolls back from today.")
	f.StringVar(&list.to, "to", "", "Fixed window end date, YYYY-MM-DD, inclusive. Requires --from.")
	f.StringVar(&list.order, "sort", "fetch", "Row order: fetch (first seen) or release (newest first)")
	f.StringVar(&list.csvPath, "csv", "", "Write CSV here (local path or gs://bucket/object)")
	f.StringVar(&list.jsonPath, "json", "", "Write JSON here (local path or gs://bucket/object)")
	f.StringVar(&list.htmlPath, "html", "", "Write an HTML report here (local path or gs://bucket/object)")
	f.StringVar(&list.bigQuery, "bigquery", "", "Append rows to this BigQuery table, PROJECT.DATASET.TABLE")
}

// parseDateFlag reads a YYYY-MM-DD flag value. Empty means not given.
func parseDateFlag(name, value string) (civil.Date, error) {
	if value == "" {
		return civil.Date{}, nil
	}

	d, err := civil.ParseDate(value)
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: --%s %q is not a YYYY-MM-DD date", herring.ErrInvalidArgument, name, value)
	}

	return d, nil
}

func windowOptions(weeks int, from, to string) (window.Options, error) {
	f, err := parseDateFlag("from", from)
	if err != nil {
		return window.Options{}, err
	}

	t, err := parseDateFlag("to", to)
	if err != nil {
		return window.Options{}, err
	}

	return window.Options{Weeks: weeks, From: f, To: t}, nil
}

func (l listFlags) outputs() []string {
	var out []string
	for _, p := range []string{l.csvPath, l.jsonPath, l.htmlPath} {
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

// check rejects bad flags before anything touches the network.
func (l listFlags) check() (window.Options, pipeline.Order, *export.TableRef, error) {
	win, err := windowOptions(l.weeks, l.from, l.to)
	if err != nil {
		return window.Options{}, 0, nil, err
	}

	// Plan once here so window errors surface even before config loading.
	if _, err := window.Plan(window.Today(), win); err != nil {
		return window.Options{}, 0, nil, err
	}

	order, err := pipeline.ParseOrder(l.order)
	if err != nil {
		return window.Options{}, 0, nil, err
	}

	for _, p := range l.outputs() {
		if herring.IsGoogleStorage(p) {
			if _, _, err := herring.SplitGoogleStoragePath(p); err != nil {
				return window.Options{}, 0, nil, err
			}
		}
	}

	var ref *export.TableRef
	if l.bigQuery != "" {
		r, err := export.ParseTableRef(l.bigQuery)
		if err != nil {
			return window.Options{}, 0, nil, err
		}
		ref = &r
	}

	return win, order, ref, nil
}

func runList(ctx context.Context, l listFlags, stdout, stderr io.Writer) error {
	win, order, ref, err := l.check()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	res, err := pipeline.Run(ctx, cfg, pipeline.Options{Window: win, Order: order, Logger: logger})
	if err != nil {
		return err
	}

	if len(res.Studies) == 0 {
		fmt.Fprintf(stderr, "No runs found (%s)\n", res.Mode)
	}

	if len(l.outputs()) == 0 && ref == nil {
		return export.WriteCSV(stdout, res.Studies)
	}

	var gcs *storage.Client
	for _, p := range l.outputs() {
		if herring.IsGoogleStorage(p) && gcs == nil {
			if gcs, err = storage.NewClient(ctx); err != nil {
				return fmt.Errorf("connecting to Google Storage: %w", err)
			}
			defer gcs.Close()
		}
	}

	meta := export.ReportMeta{Window: res.Mode.String(), Generated: time.Now()}
	var outs []output
	for _, o := range []output{
		{l.csvPath, func(w io.Writer) error { return export.WriteCSV(w, res.Studies) }},
		{l.jsonPath, func(w io.Writer) error { return export.WriteJSON(w, res.Studies) }},
		{l.htmlPath, func(w io.Writer) error { return export.WriteHTML(w, res.Studies, meta) }},
	} {
		if o.path != "" {
			outs = append(outs, o)
		}
	}

	if err := writeOutputs(ctx, gcs, outs); err != nil {
		return err
	}
	for _, o := range outs {
		logger.Info("wrote output", zap.String("path", o.path), zap.Int("studies", len(res.Studies)))
	}

	if ref != nil {
		loader, err := export.NewBigQueryLoader(ctx, *ref, logger)
		if err != nil {
			return err
		}
		defer loader.Close()

		if err := loader.Load(ctx, res.Studies); err != nil {
			return err
		}
	}

	return nil
}

type output struct {
	path   string
	render func(io.Writer) error
}

type stagedOutput struct {
	path string
	w    herring.StagedWriter
}

// writeOutputs renders every output before any destination is touched, then
// stages and commits them. A rendering or staging failure leaves all
// destinations as they were.
func writeOutputs(ctx context.Context, gcs *storage.Client, outs []output) error {
	bodies := make([]bytes.Buffer, len(outs))
	for i, o := range outs {
		if err := o.render(&bodies[i]); err != nil {
			return fmt.Errorf("rendering %s: %w", o.path, err)
		}
	}

	staged := make([]stagedOutput, 0, len(outs))
	abort := func(rest []stagedOutput) {
		for _, s := range rest {
			s.w.Abort()
		}
	}

	for i, o := range outs {
		w, err := herring.MaybeCreateOnGoogleStorage(ctx, o.path, gcs)
		if err != nil {
			abort(staged)
			return fmt.Errorf("opening %s: %w", o.path, err)
		}
		staged = append(staged, stagedOutput{path: o.path, w: w})

		if _, err := bodies[i].WriteTo(w); err != nil {
			abort(staged)
			return fmt.Errorf("writing %s: %w", o.path, err)
		}
	}

	// Uploads can still fail when committed; local renames rarely do.
	sort.SliceStable(staged, func(i, j int) bool {
		return herring.IsGoogleStorage(staged[i].path) && !herring.IsGoogleStorage(staged[j].path)
	})

	for i, s := range staged {
		if err := s.w.Commit(); err != nil {
			abort(staged[i+1:])
			return fmt.Errorf("committing %s: %w", s.path, err)
		}
	}

	return nil
}
