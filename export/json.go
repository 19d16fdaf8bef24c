package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/carbocation/herring"
	"github.com/carbocation/herring/summary"
	"github.com/google/jsonschema-go/jsonschema"
)

type jsonRecord struct {
	StudyAccession string   `json:"study_accession"`
	ReleaseDate    string   `json:"release_date"`
	Platform       string   `json:"platform"`
	SequencingType string   `json:"sequencing_type"`
	Species        []string `json:"species"`
	Biosamples     int      `json:"biosamples"`
	Gigabases      float64  `json:"gigabases"`
	StudyTitle     string   `json:"study_title"`
}

func ptr[T any](v T) *T { return &v }

// Schema describes the JSON document WriteJSON produces: an array of study
// objects.
func Schema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "array",
		Items: &jsonschema.Schema{
			Type:     "object",
			Required: Columns,
			Properties: map[string]*jsonschema.Schema{
				"study_accession": {Type: "string", Pattern: `^PRJ[EN][AB].+`},
				"release_date":    {Type: "string", Format: "date", Pattern: `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`},
				"platform":        {Type: "string"},
				"sequencing_type": {Type: "string"},
				"species": {
					Type:        "array",
					Items:       &jsonschema.Schema{Type: "string"},
					MaxItems:    ptr(summary.MaxSpecies),
					UniqueItems: true,
				},
				"biosamples":  {Type: "integer", Minimum: ptr(0.0)},
				"gigabases":   {Type: "number", Minimum: ptr(0.0)},
				"study_title": {Type: "string"},
			},
			// false: nothing beyond the listed properties.
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
	}
}

var (
	resolveOnce sync.Once
	resolved    *jsonschema.Resolved
	resolveErr  error
)

func resolvedSchema() (*jsonschema.Resolved, error) {
	resolveOnce.Do(func() {
		resolved, resolveErr = Schema().Resolve(nil)
	})

	return resolved, resolveErr
}

// Validate checks an encoded JSON document against Schema.
func Validate(doc []byte) error {
	rs, err := resolvedSchema()
	if err != nil {
		return err
	}

	var instance any
	if err := json.Unmarshal(doc, &instance); err != nil {
		return err
	}

	return rs.Validate(instance)
}

// WriteJSON encodes the studies as a JSON array. Nothing is written unless the
// whole document validates against Schema.
func WriteJSON(w io.Writer, studies []summary.StudySummary) error {
	records := make([]jsonRecord, 0, len(studies))
	for _, s := range studies {
		records = append(records, jsonRecord{
			StudyAccession: s.StudyAccession,
			ReleaseDate:    formatDate(s.ReleaseDate),
			Platform:       string(s.Platform),
			SequencingType: string(s.SequencingType),
			Species:        species(s),
			Biosamples:     s.Biosamples,
			Gigabases:      s.Gigabases,
			StudyTitle:     s.StudyTitle,
		})
	}

	doc, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	if err := Validate(doc); err != nil {
		return fmt.Errorf("%w: JSON output does not match its schema: %v", herring.ErrFatal, err)
	}

	doc = append(doc, '\n')
	_, err = w.Write(doc)

	return err
}
