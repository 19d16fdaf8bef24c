// Package window decides which dates to ask the portal about. A Rolling mode
// is anchored to "now" and re-evaluated on every invocation. A FixedRelease
// mode is anchored to explicit dates so historical listings are reproducible.
package window

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/carbocation/herring"
)

// Kind selects the query semantics.
type Kind int

const (
	// Rolling matches runs first made public or updated on or after a
	// threshold, with no upper bound.
	Rolling Kind = iota

	// FixedRelease matches runs first made public within a closed date range.
	// last_updated is not consulted.
	FixedRelease
)

func (k Kind) String() string {
	switch k {
	case Rolling:
		return "rolling"
	case FixedRelease:
		return "fixed-release"
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// Today is the current UTC calendar date, the anchor for rolling windows.
func Today() civil.Date {
	return DateUTC(time.Now())
}

// DateUTC is the UTC calendar date of t, whatever t's location.
func DateUTC(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}

// Options are the user's window choices. A zero From or To means the option
// was not given.
type Options struct {
	Weeks int
	From  civil.Date
	To    civil.Date
}

// Mode is a planned window. Since is set for Rolling; Start and End (both
// inclusive) are set for FixedRelease.
type Mode struct {
	Kind  Kind
	Since civil.Date
	Start civil.Date
	End   civil.Date
}

func (m Mode) String() string {
	if m.Kind == Rolling {
		return fmt.Sprintf("first_public or last_updated >= %s", m.Since)
	}

	return fmt.Sprintf("first_public in [%s, %s]", m.Start, m.End)
}

// Plan turns the options into a Mode. All failures wrap
// herring.ErrInvalidArgument.
func Plan(now civil.Date, opts Options) (Mode, error) {
	hasFrom, hasTo := opts.From != (civil.Date{}), opts.To != (civil.Date{})

	switch {
	case hasTo && !hasFrom:
		return Mode{}, fmt.Errorf("%w: an end date (%s) requires a start date", herring.ErrInvalidArgument, opts.To)
	case hasFrom && !opts.From.IsValid():
		return Mode{}, fmt.Errorf("%w: start date %s is not a calendar date", herring.ErrInvalidArgument, opts.From)
	case hasTo && !opts.To.IsValid():
		return Mode{}, fmt.Errorf("%w: end date %s is not a calendar date", herring.ErrInvalidArgument, opts.To)
	}

	// An explicit end date makes the week count irrelevant.
	if !hasTo && opts.Weeks < 1 {
		return Mode{}, fmt.Errorf("%w: weeks must be at least 1, got %d", herring.ErrInvalidArgument, opts.Weeks)
	}

	if !hasFrom {
		if !now.IsValid() {
			return Mode{}, fmt.Errorf("%w: current date %s is not a calendar date", herring.ErrInvalidArgument, now)
		}

		return Mode{Kind: Rolling, Since: now.AddDays(-7 * opts.Weeks)}, nil
	}

	if hasTo {
		if opts.To.Before(opts.From) {
			return Mode{}, fmt.Errorf("%w: end date %s is before start date %s", herring.ErrInvalidArgument, opts.To, opts.From)
		}

		return Mode{Kind: FixedRelease, Start: opts.From, End: opts.To}, nil
	}

	// Closed interval standing in for the half-open [from, from+weeks).
	return Mode{Kind: FixedRelease, Start: opts.From, End: opts.From.AddDays(7*opts.Weeks - 1)}, nil
}

// Contains reports whether a run with these dates belongs to the window.
// Invalid (absent) dates never match.
func (m Mode) Contains(firstPublic, lastUpdated civil.Date) bool {
	if m.Kind == Rolling {
		return onOrAfter(firstPublic, m.Since) || onOrAfter(lastUpdated, m.Since)
	}

	return onOrAfter(firstPublic, m.Start) && onOrBefore(firstPublic, m.End)
}

func onOrAfter(d, bound civil.Date) bool {
	return d.IsValid() && !d.Before(bound)
}

func onOrBefore(d, bound civil.Date) bool {
	return d.IsValid() && !d.After(bound)
}
