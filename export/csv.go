package export

import (
	"io"
	"strconv"

	"github.com/carbocation/herring/summary"
	"github.com/gocarina/gocsv"
)

type csvRow struct {
	StudyAccession string `csv:"study_accession"`
	ReleaseDate    string `csv:"release_date"`
	Platform       string `csv:"platform"`
	SequencingType string `csv:"sequencing_type"`
	Species        string `csv:"species"`
	Biosamples     string `csv:"biosamples"`
	Gigabases      string `csv:"gigabases"`
	StudyTitle     string `csv:"study_title"`
}

// WriteCSV writes a header and one line per study. The header is written even
// when there are no studies.
func WriteCSV(w io.Writer, studies []summary.StudySummary) error {
	rows := make([]*csvRow, 0, len(studies))
	for _, s := range studies {
		rows = append(rows, &csvRow{
			StudyAccession: s.StudyAccession,
			ReleaseDate:    formatDate(s.ReleaseDate),
			Platform:       string(s.Platform),
			SequencingType: string(s.SequencingType),
			Species:        joinSpecies(s.Species),
			Biosamples:     strconv.Itoa(s.Biosamples),
			Gigabases:      formatGigabases(s.Gigabases),
			StudyTitle:     s.StudyTitle,
		})
	}

	return gocsv.Marshal(&rows, w)
}
