package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/carbocation/herring"
	"github.com/carbocation/herring/summary"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

type bigQueryRow struct {
	StudyAccession string     `bigquery:"study_accession"`
	ReleaseDate    civil.Date `bigquery:"release_date"`
	Platform       string     `bigquery:"platform"`
	SequencingType string     `bigquery:"sequencing_type"`
	Species        []string   `bigquery:"species"`
	Biosamples     int64      `bigquery:"biosamples"`
	Gigabases      float64    `bigquery:"gigabases"`
	StudyTitle     string     `bigquery:"study_title"`
}

// TableRef names a BigQuery table.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

func (r TableRef) String() string {
	return r.Project + "." + r.Dataset + "." + r.Table
}

// ParseTableRef reads a PROJECT.DATASET.TABLE reference.
func ParseTableRef(ref string) (TableRef, error) {
	parts := strings.Split(ref, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return TableRef{}, fmt.Errorf("%w: %q is not PROJECT.DATASET.TABLE", herring.ErrInvalidArgument, ref)
	}

	return TableRef{Project: parts[0], Dataset: parts[1], Table: parts[2]}, nil
}

// BigQueryLoader streams summaries into a BigQuery table, creating the table
// on first use.
type BigQueryLoader struct {
	ref    TableRef
	client *bigquery.Client
	log    *zap.Logger
}

// NewBigQueryLoader connects to the project named in ref.
func NewBigQueryLoader(ctx context.Context, ref TableRef, log *zap.Logger) (*BigQueryLoader, error) {
	if log == nil {
		log = zap.NewNop()
	}

	client, err := bigquery.NewClient(ctx, ref.Project)
	if err != nil {
		return nil, fmt.Errorf("connecting to BigQuery: %w", err)
	}

	return &BigQueryLoader{ref: ref, client: client, log: log}, nil
}

func (l *BigQueryLoader) Close() error {
	return l.client.Close()
}

// Load appends one row per study. Nothing is inserted for an empty slice, but
// the table is still created if missing.
func (l *BigQueryLoader) Load(ctx context.Context, studies []summary.StudySummary) error {
	table := l.client.Dataset(l.ref.Dataset).Table(l.ref.Table)

	if err := l.ensureTable(ctx, table); err != nil {
		return err
	}

	if len(studies) == 0 {
		return nil
	}

	if err := table.Inserter().Put(ctx, bigQueryRows(studies)); err != nil {
		return fmt.Errorf("inserting into %s: %w", l.ref, err)
	}

	l.log.Info("loaded studies into BigQuery", zap.Stringer("table", l.ref), zap.Int("rows", len(studies)))

	return nil
}

func (l *BigQueryLoader) ensureTable(ctx context.Context, table *bigquery.Table) error {
	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusNotFound {
		return fmt.Errorf("looking up %s: %w", l.ref, err)
	}

	schema, err := BigQuerySchema()
	if err != nil {
		return err
	}

	if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return fmt.Errorf("creating %s: %w", l.ref, err)
	}
	l.log.Info("created BigQuery table", zap.Stringer("table", l.ref))

	return nil
}

// BigQuerySchema is the table schema used when the target table is created.
func BigQuerySchema() (bigquery.Schema, error) {
	return bigquery.InferSchema(bigQueryRow{})
}

func bigQueryRows(studies []summary.StudySummary) []*bigQueryRow {
	rows := make([]*bigQueryRow, 0, len(studies))
	for _, s := range studies {
		rows = append(rows, &bigQueryRow{
			StudyAccession: s.StudyAccession,
			ReleaseDate:    s.ReleaseDate,
			Platform:       string(s.Platform),
			SequencingType: string(s.SequencingType),
			Species:        species(s),
			Biosamples:     int64(s.Biosamples),
			Gigabases:      s.Gigabases,
			StudyTitle:     s.StudyTitle,
		})
	}

	return rows
}
