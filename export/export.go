// Package export writes study summaries as CSV, JSON, an HTML report, or rows
// in a BigQuery table. Every format uses the same column order.
package export

import (
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/carbocation/herring/summary"
)

// Columns is the column order shared by every format.
var Columns = []string{
	"study_accession",
	"release_date",
	"platform",
	"sequencing_type",
	"species",
	"biosamples",
	"gigabases",
	"study_title",
}

// SpeciesSeparator joins the species list in flat formats.
const SpeciesSeparator = ", "

func formatDate(d civil.Date) string {
	if !d.IsValid() {
		return ""
	}

	return d.String()
}

func formatGigabases(g float64) string {
	return strconv.FormatFloat(g, 'f', 1, 64)
}

func joinSpecies(species []string) string {
	return strings.Join(species, SpeciesSeparator)
}

// species never returns nil so that JSON carries [] rather than null.
func species(s summary.StudySummary) []string {
	if s.Species == nil {
		return []string{}
	}

	return s.Species
}
