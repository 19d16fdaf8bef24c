package export

import (
	"bytes"
	_ "embed"
	"html/template"
	"io"
	"time"

	"github.com/carbocation/herring/summary"
	"github.com/montanaflynn/stats"
	"github.com/wcharczuk/go-chart/v2"
)

//go:embed report.html.tmpl
var reportSource string

var reportTemplate = template.Must(template.New("report").Parse(reportSource))

// ReportMeta labels an HTML report.
type ReportMeta struct {
	Title     string
	Window    string
	Generated time.Time
}

type htmlRow struct {
	StudyAccession string
	ReleaseDate    string
	Platform       string
	SequencingType string
	Species        string
	Biosamples     int
	Gigabases      string
	StudyTitle     string
}

type report struct {
	Title           string
	Window          string
	Generated       string
	Columns         []string
	Rows            []htmlRow
	Chart           template.HTML
	Biosamples      int
	TotalGigabases  float64
	MedianGigabases float64
}

// WriteHTML renders a standalone HTML page with a table of the studies, a bar
// chart of gigabases per platform and overall totals.
func WriteHTML(w io.Writer, studies []summary.StudySummary, meta ReportMeta) error {
	rep := report{
		Title:   meta.Title,
		Window:  meta.Window,
		Columns: Columns,
		Rows:    make([]htmlRow, 0, len(studies)),
	}
	if rep.Title == "" {
		rep.Title = "Oxford Nanopore studies"
	}
	if !meta.Generated.IsZero() {
		rep.Generated = meta.Generated.UTC().Format(time.RFC3339)
	}

	gb := make([]float64, 0, len(studies))
	for _, s := range studies {
		rep.Rows = append(rep.Rows, htmlRow{
			StudyAccession: s.StudyAccession,
			ReleaseDate:    formatDate(s.ReleaseDate),
			Platform:       string(s.Platform),
			SequencingType: string(s.SequencingType),
			Species:        joinSpecies(s.Species),
			Biosamples:     s.Biosamples,
			Gigabases:      formatGigabases(s.Gigabases),
			StudyTitle:     s.StudyTitle,
		})
		rep.Biosamples += s.Biosamples
		gb = append(gb, s.Gigabases)
	}

	if len(gb) > 0 {
		var err error
		if rep.TotalGigabases, err = stats.Sum(gb); err != nil {
			return err
		}
		if rep.MedianGigabases, err = stats.Median(gb); err != nil {
			return err
		}
	}

	svg, err := platformChart(studies)
	if err != nil {
		return err
	}
	rep.Chart = template.HTML(svg)

	return reportTemplate.Execute(w, rep)
}

var platformOrder = []summary.Platform{
	summary.PromethION,
	summary.GridION,
	summary.MinION,
	summary.UnknownPlatform,
}

// platformChart draws total gigabases per platform as SVG. It returns "" when
// no platform has any data.
func platformChart(studies []summary.StudySummary) (string, error) {
	totals := make(map[summary.Platform]float64)
	for _, s := range studies {
		totals[s.Platform] += s.Gigabases
	}

	var (
		bars []chart.Value
		top  float64
	)
	for _, p := range platformOrder {
		if v := totals[p]; v > 0 {
			bars = append(bars, chart.Value{Label: string(p), Value: v})
			if v > top {
				top = v
			}
		}
	}
	if len(bars) == 0 {
		return "", nil
	}

	graph := chart.BarChart{
		Title:    "Gigabases per platform",
		Width:    640,
		Height:   320,
		BarWidth: 80,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.SVG, buffer); err != nil {
		return "", err
	}

	return buffer.String(), nil
}
