package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/carbocation/herring"
	"github.com/carbocation/herring/summary"
	"github.com/stretchr/testify/require"
)

func sample() []summary.StudySummary {
	return []summary.StudySummary{
		{
			StudyAccession: "PRJNA1",
			StudyTitle:     "Long reads, deep coverage",
			ReleaseDate:    civil.Date{Year: 2024, Month: time.January, Day: 15},
			Platform:       summary.PromethION,
			SequencingType: summary.Genome,
			Species:        []string{"Homo sapiens", "Mus musculus"},
			Biosamples:     2,
			Gigabases:      2.0,
		},
		{
			StudyAccession: "PRJEB7",
			StudyTitle:     "<script>alert(1)</script>",
			ReleaseDate:    civil.Date{Year: 2024, Month: time.February, Day: 3},
			Platform:       summary.MinION,
			SequencingType: summary.Transcriptome,
			Biosamples:     1,
			Gigabases:      0.4,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))

	want := strings.Join([]string{
		"study_accession,release_date,platform,sequencing_type,species,biosamples,gigabases,study_title",
		`PRJNA1,2024-01-15,PromethION,genome,"Homo sapiens, Mus musculus",2,2.0,"Long reads, deep coverage"`,
		"PRJEB7,2024-02-03,MinION,transcriptome,,1,0.4,<script>alert(1)</script>",
		"",
	}, "\n")
	require.Equal(t, want, buf.String())
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	require.Equal(t, strings.Join(Columns, ",")+"\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sample()))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, "2024-01-15", got[0]["release_date"])
	require.Equal(t, []any{"Homo sapiens", "Mus musculus"}, got[0]["species"])
	require.Equal(t, []any{}, got[1]["species"])
	require.Equal(t, 0.4, got[1]["gigabases"])
	require.Len(t, got[0], len(Columns))
}

func TestWriteJSONEmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	require.Equal(t, "[]\n", buf.String())
}

func TestWriteJSONRefusesInvalidDocument(t *testing.T) {
	bad := sample()
	bad[1].StudyAccession = "SRP123"

	var buf bytes.Buffer
	err := WriteJSON(&buf, bad)
	require.ErrorIs(t, err, herring.ErrFatal)
	require.Zero(t, buf.Len())
}

func TestSchema(t *testing.T) {
	valid := `{"study_accession":"PRJEB1","release_date":"2024-01-01","platform":"GridION",
		"sequencing_type":"genome","species":["a"],"biosamples":0,"gigabases":0,"study_title":""}`

	cases := []struct {
		name string
		doc  string
		ok   bool
	}{
		{"valid", "[" + valid + "]", true},
		{"empty", "[]", true},
		{"not an array", valid, false},
		{"missing field", `[{"study_accession":"PRJEB1"}]`, false},
		{"extra field", `[` + strings.Replace(valid, `"study_title":""`, `"study_title":"","extra":1`, 1) + `]`, false},
		{"bad accession", `[` + strings.Replace(valid, "PRJEB1", "ERP1", 1) + `]`, false},
		{"bad date", `[` + strings.Replace(valid, "2024-01-01", "01/01/2024", 1) + `]`, false},
		{"negative biosamples", `[` + strings.Replace(valid, `"biosamples":0`, `"biosamples":-1`, 1) + `]`, false},
		{"fractional biosamples", `[` + strings.Replace(valid, `"biosamples":0`, `"biosamples":1.5`, 1) + `]`, false},
		{"negative gigabases", `[` + strings.Replace(valid, `"gigabases":0`, `"gigabases":-0.1`, 1) + `]`, false},
		{"duplicate species", `[` + strings.Replace(valid, `["a"]`, `["a","a"]`, 1) + `]`, false},
		{"too many species", `[` + strings.Replace(valid, `["a"]`, `["a","b","c","d","e","f"]`, 1) + `]`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate([]byte(tc.doc))
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	meta := ReportMeta{Window: "first_public in [2024-01-01, 2024-02-29]", Generated: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, WriteHTML(&buf, sample(), meta))

	page := buf.String()
	require.Contains(t, page, "<svg")
	require.Contains(t, page, "PRJNA1")
	require.Contains(t, page, "Homo sapiens, Mus musculus")
	require.Contains(t, page, "2024-03-01T12:00:00Z")
	require.Contains(t, page, "2.4 Gb total")
	require.Contains(t, page, "1.2 Gb median")
	require.NotContains(t, page, "<script>alert(1)</script>")
	require.Contains(t, page, "&lt;script&gt;")
}

func TestWriteHTMLEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, nil, ReportMeta{}))

	page := buf.String()
	require.Contains(t, page, "No runs found.")
	require.NotContains(t, page, "<svg")
}

func TestPlatformChartSkipsZeroData(t *testing.T) {
	svg, err := platformChart([]summary.StudySummary{{StudyAccession: "PRJEB1", Platform: summary.GridION}})
	require.NoError(t, err)
	require.Empty(t, svg)
}

func TestParseTableRef(t *testing.T) {
	ref, err := ParseTableRef("my-project.ont.studies")
	require.NoError(t, err)
	require.Equal(t, TableRef{Project: "my-project", Dataset: "ont", Table: "studies"}, ref)
	require.Equal(t, "my-project.ont.studies", ref.String())

	for _, bad := range []string{"", "a.b", "a..c", "a.b.c.d"} {
		_, err := ParseTableRef(bad)
		require.ErrorIs(t, err, herring.ErrInvalidArgument, bad)
	}
}

func TestBigQuerySchema(t *testing.T) {
	schema, err := BigQuerySchema()
	require.NoError(t, err)

	var names []string
	types := map[string]bigquery.FieldType{}
	for _, f := range schema {
		names = append(names, f.Name)
		types[f.Name] = f.Type
		if f.Name == "species" {
			require.True(t, f.Repeated)
		}
	}
	require.Equal(t, Columns, names)
	require.Equal(t, bigquery.DateFieldType, types["release_date"])
	require.Equal(t, bigquery.IntegerFieldType, types["biosamples"])
	require.Equal(t, bigquery.FloatFieldType, types["gigabases"])
}

func TestBigQueryRows(t *testing.T) {
	rows := bigQueryRows(sample())
	require.Len(t, rows, 2)
	require.Equal(t, []string{}, rows[1].Species)
	require.Equal(t, int64(2), rows[0].Biosamples)
	require.Equal(t, "PromethION", rows[0].Platform)
}
