// Package summary rolls run records up into one StudySummary per study.
package summary

import (
	"errors"
	"slices"

	"cloud.google.com/go/civil"
	"github.com/carbocation/herring/ena"
	"google.golang.org/api/iterator"
)

// MaxSpecies is the most scientific names kept per study.
const MaxSpecies = 5

// StudySummary describes one study as seen through its runs in the fetched
// window.
type StudySummary struct {
	StudyAccession string
	StudyTitle     string
	ReleaseDate    civil.Date
	Platform       Platform
	SequencingType SequencingType
	Species        []string
	Biosamples     int
	Gigabases      float64
}

// RecordSource yields run records until it returns iterator.Done.
// *fetch.RunIterator satisfies it.
type RecordSource interface {
	Next(*ena.RunRecord) error
}

type sliceSource struct {
	recs []ena.RunRecord
}

func (s *sliceSource) Next(rec *ena.RunRecord) error {
	if len(s.recs) == 0 {
		return iterator.Done
	}

	*rec = s.recs[0]
	s.recs = s.recs[1:]

	return nil
}

// FromSlice adapts an in-memory slice into a RecordSource.
func FromSlice(recs []ena.RunRecord) RecordSource {
	return &sliceSource{recs: recs}
}

type accumulator struct {
	accession   string
	title       string
	firstPublic civil.Date
	lastUpdated civil.Date
	platforms   tally[Platform]
	types       tally[SequencingType]
	species     []string
	samples     map[string]struct{}
	bases       int64
}

func (a *accumulator) add(r ena.RunRecord) {
	if a.title == "" {
		a.title = r.StudyTitle
	}

	a.firstPublic = minDate(a.firstPublic, r.FirstPublic)
	a.lastUpdated = minDate(a.lastUpdated, r.LastUpdated)

	a.platforms.add(ClassifyPlatform(r.InstrumentModel))
	a.types.add(ClassifySequencingType(r.LibraryStrategy))

	if r.ScientificName != "" && len(a.species) < MaxSpecies && !slices.Contains(a.species, r.ScientificName) {
		a.species = append(a.species, r.ScientificName)
	}

	if r.SampleAccession != "" {
		a.samples[r.SampleAccession] = struct{}{}
	}

	a.bases += r.BaseCount
}

func (a *accumulator) summary() StudySummary {
	release := a.firstPublic
	if !release.IsValid() {
		release = a.lastUpdated
	}

	return StudySummary{
		StudyAccession: a.accession,
		StudyTitle:     a.title,
		ReleaseDate:    release,
		Platform:       a.platforms.majority(UnknownPlatform),
		SequencingType: a.types.majority(OtherType),
		Species:        a.species,
		Biosamples:     len(a.samples),
		Gigabases:      Gigabases(a.bases),
	}
}

// Aggregate consumes src and returns one summary per distinct study
// accession, in the order each accession was first seen. Records that fail
// validation are skipped.
func Aggregate(src RecordSource) ([]StudySummary, error) {
	var (
		order []*accumulator
		index = make(map[string]*accumulator)
	)

	for {
		var rec ena.RunRecord
		err := src.Next(&rec)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}

		if rec.Validate() != nil {
			continue
		}

		acc, exists := index[rec.StudyAccession]
		if !exists {
			acc = &accumulator{accession: rec.StudyAccession, samples: make(map[string]struct{})}
			index[rec.StudyAccession] = acc
			order = append(order, acc)
		}
		acc.add(rec)
	}

	out := make([]StudySummary, 0, len(order))
	for _, acc := range order {
		out = append(out, acc.summary())
	}

	return out, nil
}

// Gigabases converts a base count to gigabases rounded to one decimal place,
// with exact halves rounding up. The arithmetic stays in integers so the
// result never depends on float representation of the sum.
func Gigabases(bases int64) float64 {
	if bases <= 0 {
		return 0
	}

	tenths := (bases + 50_000_000) / 100_000_000

	return float64(tenths) / 10
}

// SortByReleaseDesc orders summaries newest release first. Studies released
// on the same day keep their relative order; undated studies sort last.
func SortByReleaseDesc(s []StudySummary) {
	slices.SortStableFunc(s, func(a, b StudySummary) int {
		av, bv := a.ReleaseDate.IsValid(), b.ReleaseDate.IsValid()
		switch {
		case av && bv:
			return b.ReleaseDate.DaysSince(a.ReleaseDate)
		case av:
			return -1
		case bv:
			return 1
		}

		return 0
	})
}

func minDate(cur, d civil.Date) civil.Date {
	if !d.IsValid() {
		return cur
	}
	if !cur.IsValid() || d.Before(cur) {
		return d
	}

	return cur
}
