package fetch

import (
	"errors"

	"github.com/carbocation/herring/ena"
	"github.com/carbocation/herring/window"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
)

// Stats count what the iterator did with the fetched rows.
type Stats struct {
	Rows             int
	Yielded          int
	InvalidAccession int
	Invalid          int
	Duplicate        int
	OutOfWindow      int
}

// RunIterator yields validated, deduplicated RunRecords in fetch order. It is
// single-use: once Next returns iterator.Done it keeps doing so.
type RunIterator struct {
	mode window.Mode
	rows []ena.Row
	pos  int
	seen map[string]struct{}
	log  *zap.Logger

	stats Stats
	done  bool
}

func newRunIterator(mode window.Mode, rows []ena.Row, log *zap.Logger) *RunIterator {
	return &RunIterator{
		mode:  mode,
		rows:  rows,
		seen:  make(map[string]struct{}, len(rows)),
		log:   log,
		stats: Stats{Rows: len(rows)},
	}
}

// Next stores the next record in rec. It returns iterator.Done when the rows
// are exhausted.
//
// Rows are dropped, never fatally, when they fail RunRecord.Validate, when
// the run accession was already yielded, or when the row's dates fall outside
// the planned window.
func (it *RunIterator) Next(rec *ena.RunRecord) error {
	for it.pos < len(it.rows) {
		row := it.rows[it.pos]
		it.rows[it.pos] = ena.Row{}
		it.pos++

		r, err := row.Record()
		if err != nil {
			if errors.Is(err, ena.ErrInvalidAccession) {
				it.stats.InvalidAccession++
			} else {
				it.stats.Invalid++
			}
			it.log.Warn("dropping run", zap.Error(err))
			continue
		}

		// Rows without a run accession can't be deduplicated; keep them.
		if r.RunAccession != "" {
			if _, exists := it.seen[r.RunAccession]; exists {
				it.stats.Duplicate++
				continue
			}
			it.seen[r.RunAccession] = struct{}{}
		}

		if !it.mode.Contains(r.FirstPublic, r.LastUpdated) {
			it.stats.OutOfWindow++
			it.log.Warn("dropping run outside the requested window",
				zap.String("run", r.RunAccession),
				zap.Stringer("first_public", r.FirstPublic),
				zap.Stringer("last_updated", r.LastUpdated))
			continue
		}

		it.stats.Yielded++
		*rec = r
		return nil
	}

	if !it.done {
		it.done = true
		it.rows = nil
		it.log.Info("runs accepted",
			zap.Int("rows", it.stats.Rows),
			zap.Int("accepted", it.stats.Yielded),
			zap.Int("invalid_accession", it.stats.InvalidAccession),
			zap.Int("invalid", it.stats.Invalid),
			zap.Int("duplicate", it.stats.Duplicate),
			zap.Int("out_of_window", it.stats.OutOfWindow))
	}

	return iterator.Done
}

// Stats reports counts so far.
func (it *RunIterator) Stats() Stats {
	return it.stats
}

// Collect drains the iterator into a slice.
func Collect(it interface{ Next(*ena.RunRecord) error }) ([]ena.RunRecord, error) {
	var out []ena.RunRecord
	for {
		var rec ena.RunRecord
		err := it.Next(&rec)
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
