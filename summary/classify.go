package summary

import "strings"

// Platform is the Oxford Nanopore instrument family a run was sequenced on.
type Platform string

const (
	PromethION      Platform = "PromethION"
	GridION         Platform = "GridION"
	MinION          Platform = "MinION"
	UnknownPlatform Platform = "Unknown"
)

// SequencingType is the coarse purpose of a run's library.
type SequencingType string

const (
	Genome        SequencingType = "genome"
	Transcriptome SequencingType = "transcriptome"
	Metagenome    SequencingType = "metagenome"
	OtherType     SequencingType = "other"
)

type rule[T any] struct {
	keywords []string
	category T
}

// Rules are tried in order and the first keyword hit wins. Matching is on a
// case-folded substring, so "PromethION 2 Solo" and "promethion" agree.
var platformRules = []rule[Platform]{
	{keywords: []string{"prometh"}, category: PromethION},
	{keywords: []string{"gridion"}, category: GridION},
	{keywords: []string{"minion", "flongle"}, category: MinION},
}

// METATRANSCRIPTOME must hit the metagenome rule before the transcriptome one.
var sequencingTypeRules = []rule[SequencingType]{
	{keywords: []string{"METAGENOM", "METATRANSCRIPTOM"}, category: Metagenome},
	{keywords: []string{"TRANSCRIPTOM", "RNA", "CDNA"}, category: Transcriptome},
	{keywords: []string{"WGS", "WGA", "WCS", "HI-C", "AMPLICON", "GENOM", "TARGETED-CAPTURE", "SYNTHETIC-LONG-READ"}, category: Genome},
}

// ClassifyPlatform maps a free-text instrument_model to a Platform.
func ClassifyPlatform(instrumentModel string) Platform {
	return classify(platformRules, strings.ToLower(instrumentModel), UnknownPlatform)
}

// ClassifySequencingType maps a free-text library_strategy to a
// SequencingType.
func ClassifySequencingType(libraryStrategy string) SequencingType {
	return classify(sequencingTypeRules, strings.ToUpper(libraryStrategy), OtherType)
}

func classify[T any](rules []rule[T], s string, fallback T) T {
	if s == "" {
		return fallback
	}

	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(s, kw) {
				return r.category
			}
		}
	}

	return fallback
}

// tally counts votes and remembers the order in which candidates first
// appeared.
type tally[T comparable] struct {
	order  []T
	counts map[T]int
}

func (t *tally[T]) add(v T) {
	if t.counts == nil {
		t.counts = make(map[T]int)
	}
	if _, exists := t.counts[v]; !exists {
		t.order = append(t.order, v)
	}
	t.counts[v]++
}

// majority returns the most frequent value, the earliest seen winning ties,
// or fallback when nothing was counted.
func (t *tally[T]) majority(fallback T) T {
	best, bestN := fallback, 0
	for _, v := range t.order {
		if n := t.counts[v]; n > bestN {
			best, bestN = v, n
		}
	}

	return best
}
