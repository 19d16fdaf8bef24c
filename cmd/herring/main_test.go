package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/carbocation/herring"
	"github.com/carbocation/herring/config"
	"github.com/carbocation/herring/pipeline"
	"github.com/carbocation/herring/summary"
	"github.com/carbocation/herring/window"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExitCode(t *testing.T) {
	require.Equal(t, 2, exitCode(fmt.Errorf("wrapped: %w", herring.ErrInvalidArgument)))
	require.Equal(t, 1, exitCode(fmt.Errorf("wrapped: %w", herring.ErrFatal)))
	require.Equal(t, 1, exitCode(errors.New("anything")))
}

func TestListFlagCheck(t *testing.T) {
	cases := []struct {
		name string
		in   listFlags
		ok   bool
	}{
		{"rolling default", listFlags{weeks: 8}, true},
		{"fixed", listFlags{weeks: 8, from: "2024-01-01", to: "2024-03-25"}, true},
		{"fixed derived end", listFlags{weeks: 2, from: "2024-01-01"}, true},
		{"to without from", listFlags{weeks: 8, to: "2024-03-25"}, false},
		{"to before from", listFlags{weeks: 8, from: "2024-03-25", to: "2024-01-01"}, false},
		{"bad date", listFlags{weeks: 8, from: "2024-13-01"}, false},
		{"not a date", listFlags{weeks: 8, from: "last tuesday"}, false},
		{"zero weeks", listFlags{weeks: 0}, false},
		{"bad sort", listFlags{weeks: 8, order: "size"}, false},
		{"bad gs path", listFlags{weeks: 8, csvPath: "gs://bucket-only"}, false},
		{"bad table", listFlags{weeks: 8, bigQuery: "dataset.table"}, false},
		{"good outputs", listFlags{weeks: 8, csvPath: "gs://b/o.csv", jsonPath: "out.json", bigQuery: "p.d.t"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := tc.in.check()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, herring.ErrInvalidArgument)
			}
		})
	}
}

func TestWindowOptions(t *testing.T) {
	opts, err := windowOptions(3, "2024-01-01", "")
	require.NoError(t, err)
	require.Equal(t, window.Options{Weeks: 3, From: civil.Date{Year: 2024, Month: time.January, Day: 1}}, opts)
}

func writeString(body string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, body)
		return err
	}
}

func TestWriteOutputsLocal(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out.csv")
	jsonPath := filepath.Join(dir, "out.json")

	err := writeOutputs(context.Background(), nil, []output{
		{csvPath, writeString("a,b\n")},
		{jsonPath, writeString("[]\n")},
	})
	require.NoError(t, err)

	got, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.Equal(t, "a,b\n", string(got))

	got, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestWriteOutputsRenderFailureKeepsPreviousFiles(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out.csv")
	jsonPath := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(csvPath, []byte("old csv\n"), 0o644))
	require.NoError(t, os.WriteFile(jsonPath, []byte("old json\n"), 0o644))

	err := writeOutputs(context.Background(), nil, []output{
		{csvPath, writeString("new csv\n")},
		{jsonPath, func(io.Writer) error { return herring.ErrFatal }},
	})
	require.ErrorIs(t, err, herring.ErrFatal)

	got, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.Equal(t, "old csv\n", string(got))

	got, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	require.Equal(t, "old json\n", string(got))
}

func TestWriteOutputsUnwritableDestinationWritesNothing(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out.csv")

	err := writeOutputs(context.Background(), nil, []output{
		{csvPath, writeString("a,b\n")},
		{filepath.Join(dir, "missing", "out.json"), writeString("[]\n")},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "out.json")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWriteOutputsGoogleStorageNeedsClient(t *testing.T) {
	dir := t.TempDir()

	err := writeOutputs(context.Background(), nil, []output{
		{filepath.Join(dir, "out.csv"), writeString("a,b\n")},
		{"gs://bucket/out.csv", writeString("a,b\n")},
	})
	require.ErrorIs(t, err, herring.ErrInvalidArgument)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func fakeRun(res *pipeline.Result, err error, seen *pipeline.Options) runFunc {
	return func(_ context.Context, _ config.Config, opts pipeline.Options) (*pipeline.Result, error) {
		if seen != nil {
			*seen = opts
		}
		return res, err
	}
}

func testResult() *pipeline.Result {
	return &pipeline.Result{
		RunID: "run-1",
		Mode:  window.Mode{Kind: window.Rolling, Since: civil.Date{Year: 2024, Month: time.March, Day: 6}},
		Studies: []summary.StudySummary{{
			StudyAccession: "PRJNA1",
			ReleaseDate:    civil.Date{Year: 2024, Month: time.March, Day: 10},
			Platform:       summary.GridION,
			SequencingType: summary.Genome,
			Species:        []string{"Vibrio cholerae"},
			Biosamples:     1,
			Gigabases:      1.5,
			StudyTitle:     "Cholera",
		}},
	}
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

	return rec
}

func TestServeJSON(t *testing.T) {
	var seen pipeline.Options
	h := router(&handler{cfg: config.Default(), log: zap.NewNop(), run: fakeRun(testResult(), nil, &seen)})

	rec := get(t, h, "/studies.json?from=2024-01-01&to=2024-01-31&sort=release")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "run-1", rec.Header().Get("X-Herring-Run-Id"))

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	require.Equal(t, "PRJNA1", body[0]["study_accession"])

	require.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 31}, seen.Window.To)
	require.Equal(t, pipeline.ReleaseOrder, seen.Order)
}

func TestServeCSVAndIndex(t *testing.T) {
	h := router(&handler{cfg: config.Default(), log: zap.NewNop(), run: fakeRun(testResult(), nil, nil)})

	rec := get(t, h, "/studies.csv?weeks=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Body.String(), "study_accession,release_date,"))

	rec = get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Cholera")
}

func TestServeErrors(t *testing.T) {
	ok := router(&handler{cfg: config.Default(), log: zap.NewNop(), run: fakeRun(testResult(), nil, nil)})
	for _, url := range []string{
		"/studies.json?weeks=many",
		"/studies.json?to=2024-01-01",
		"/studies.json?from=01/01/2024",
		"/studies.json?sort=size",
	} {
		rec := get(t, ok, url)
		require.Equal(t, http.StatusBadRequest, rec.Code, url)
	}

	invalid := router(&handler{cfg: config.Default(), log: zap.NewNop(),
		run: fakeRun(nil, fmt.Errorf("%w: weeks must be at least 1", herring.ErrInvalidArgument), nil)})
	require.Equal(t, http.StatusBadRequest, get(t, invalid, "/studies.json").Code)

	upstream := router(&handler{cfg: config.Default(), log: zap.NewNop(),
		run: fakeRun(nil, fmt.Errorf("giving up after 5 attempts: %w", herring.ErrTransient), nil)})
	rec := get(t, upstream, "/studies.csv")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.False(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("study_accession")))
}
