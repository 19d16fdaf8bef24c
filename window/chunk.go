package window

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// Chunk is the window covered by a single search request. For Rolling chunks
// End is the zero date: there is no upper bound.
type Chunk struct {
	Kind  Kind
	Start civil.Date
	End   civil.Date
}

func (c Chunk) String() string {
	if c.Kind == Rolling {
		return fmt.Sprintf("%s..", c.Start)
	}

	return fmt.Sprintf("%s..%s", c.Start, c.End)
}

// Days is the number of calendar days the chunk covers, or 0 for an open
// Rolling chunk.
func (c Chunk) Days() int {
	if c.Kind == Rolling {
		return 0
	}

	return c.End.DaysSince(c.Start) + 1
}

// Chunks splits the mode into the requests to issue. Rolling modes always
// produce one chunk. FixedRelease windows longer than maxSpanDays are split
// into consecutive, non-overlapping chunks of at most maxSpanDays days that
// together cover [Start, End]; maxSpanDays < 1 disables splitting.
func (m Mode) Chunks(maxSpanDays int) []Chunk {
	if m.Kind == Rolling {
		return []Chunk{{Kind: Rolling, Start: m.Since}}
	}

	if maxSpanDays < 1 {
		return []Chunk{{Kind: FixedRelease, Start: m.Start, End: m.End}}
	}

	out := make([]Chunk, 0, m.End.DaysSince(m.Start)/maxSpanDays+1)
	for s := m.Start; !s.After(m.End); {
		e := s.AddDays(maxSpanDays - 1)
		if e.After(m.End) {
			e = m.End
		}

		out = append(out, Chunk{Kind: FixedRelease, Start: s, End: e})
		s = e.AddDays(1)
	}

	return out
}
