// Package ena describes the run-level rows returned by the ENA portal API
// search endpoint and turns them into validated RunRecords.
package ena

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/araddon/dateparse"
	"gopkg.in/guregu/null.v3"
)

// Fields are the read_run columns requested from the search endpoint, in the
// order they are requested.
var Fields = []string{
	"run_accession",
	"study_accession",
	"sample_accession",
	"base_count",
	"instrument_model",
	"library_strategy",
	"scientific_name",
	"first_public",
	"study_title",
	"last_updated",
}

var studyAccessionPattern = regexp.MustCompile(`^PRJ[EN][AB].+`)

// ErrInvalidAccession is returned for rows whose study accession is not a
// PRJEB/PRJNA/PRJEA/PRJNB style project accession. Such rows are dropped.
var ErrInvalidAccession = errors.New("invalid study accession")

// ErrNegativeBaseCount is returned by Validate for records built with a
// negative BaseCount. Record never produces one.
var ErrNegativeBaseCount = errors.New("negative base_count")

// ValidStudyAccession reports whether acc looks like an ENA/NCBI project
// accession.
func ValidStudyAccession(acc string) bool {
	return studyAccessionPattern.MatchString(acc)
}

// Row is one read_run row exactly as the API returns it. The API reports every
// value as a string, and any of them may be missing.
type Row struct {
	RunAccession    null.String `json:"run_accession"`
	StudyAccession  null.String `json:"study_accession"`
	SampleAccession null.String `json:"sample_accession"`
	BaseCount       null.String `json:"base_count"`
	InstrumentModel null.String `json:"instrument_model"`
	LibraryStrategy null.String `json:"library_strategy"`
	ScientificName  null.String `json:"scientific_name"`
	FirstPublic     null.String `json:"first_public"`
	StudyTitle      null.String `json:"study_title"`
	LastUpdated     null.String `json:"last_updated"`
}

// RunRecord is one sequencing run. Dates that were absent or unparseable are
// the zero civil.Date, which reports IsValid() == false.
type RunRecord struct {
	RunAccession    string
	StudyAccession  string
	SampleAccession string
	BaseCount       int64
	InstrumentModel string
	LibraryStrategy string
	ScientificName  string
	FirstPublic     civil.Date
	LastUpdated     civil.Date
	StudyTitle      string
}

// Validate checks the record invariants.
func (r RunRecord) Validate() error {
	if !ValidStudyAccession(r.StudyAccession) {
		return fmt.Errorf("%w: %q (run %q)", ErrInvalidAccession, r.StudyAccession, r.RunAccession)
	}
	if r.BaseCount < 0 {
		return fmt.Errorf("%w: run %q has %d", ErrNegativeBaseCount, r.RunAccession, r.BaseCount)
	}

	return nil
}

// Record converts the wire row into a RunRecord. A missing or non-numeric
// base_count counts as zero bases.
func (row Row) Record() (RunRecord, error) {
	rec := RunRecord{
		RunAccession:    clean(row.RunAccession),
		StudyAccession:  clean(row.StudyAccession),
		SampleAccession: clean(row.SampleAccession),
		InstrumentModel: clean(row.InstrumentModel),
		LibraryStrategy: clean(row.LibraryStrategy),
		ScientificName:  clean(row.ScientificName),
		StudyTitle:      clean(row.StudyTitle),
		FirstPublic:     ParseDate(clean(row.FirstPublic)),
		LastUpdated:     ParseDate(clean(row.LastUpdated)),
	}

	if bc := clean(row.BaseCount); bc != "" {
		if n, err := strconv.ParseInt(bc, 10, 64); err == nil && n > 0 {
			rec.BaseCount = n
		}
	}

	return rec, rec.Validate()
}

// ParseDate reads an API date. The portal reports YYYY-MM-DD, but some
// records carry full timestamps, so anything else goes through dateparse.
// Unparseable input yields the zero (invalid) date.
func ParseDate(s string) civil.Date {
	if s == "" {
		return civil.Date{}
	}

	if d, err := civil.ParseDate(s); err == nil {
		return d
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return civil.Date{}
	}

	return civil.DateOf(t)
}

func clean(s null.String) string {
	if !s.Valid {
		return ""
	}

	return strings.TrimSpace(s.String)
}
