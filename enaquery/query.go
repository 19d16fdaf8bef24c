// Package enaquery renders planned windows into ENA portal search queries and
// URLs.
//
// The portal expects string literals in double quotes, percent-encoded as
// %22. A backslash-escaped quote (%5C%22) is rejected, so queries are encoded
// byte by byte here rather than with net/url helpers.
package enaquery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/carbocation/herring/window"
)

// DefaultPlatform is the instrument_platform every query is restricted to
// unless configured otherwise.
const DefaultPlatform = "OXFORD_NANOPORE"

// Quote wraps a string literal in double quotes. The query language has no
// escape sequence for embedded quotes, so they are removed.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "") + `"`
}

// PlatformFilter is the clause restricting results to one instrument
// platform.
func PlatformFilter(platform string) string {
	return "instrument_platform=" + Quote(platform)
}

// Build renders the query for one chunk. Rolling chunks match on first_public
// or last_updated; FixedRelease chunks match on first_public only.
func Build(c window.Chunk, platform string) string {
	start := c.Start.String()

	if c.Kind == window.Rolling {
		return fmt.Sprintf("%s AND (first_public>=%s OR last_updated>=%s)", PlatformFilter(platform), start, start)
	}

	return fmt.Sprintf("%s AND (first_public>=%s AND first_public<=%s)", PlatformFilter(platform), start, c.End.String())
}

// Encode percent-encodes every byte that is not an ASCII letter or digit.
func Encode(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}

	return b.String()
}

// SearchURL is the read_run search request for query. A limit of 0 asks the
// portal for every matching row.
func SearchURL(base, query string, fields []string, limit int) string {
	return strings.TrimSuffix(base, "/") +
		"/search?result=read_run&dataPortal=ena" +
		"&query=" + Encode(query) +
		"&fields=" + strings.Join(fields, ",") +
		"&format=json&limit=" + strconv.Itoa(limit)
}

// ResultsURL is the lightweight status endpoint used to probe availability.
func ResultsURL(base string) string {
	return strings.TrimSuffix(base, "/") + "/results?dataPortal=ena"
}
