package resume

import (
	"time"
)

// Outcome is the terminal state of one guild's resumption.
type Outcome string

const (
	OutcomeResumed   Outcome = "resumed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeKeptAlive Outcome = "kept_alive"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// GuildReport describes what happened to one snapshot.
type GuildReport struct {
	GuildID string
	Outcome Outcome

	// Requested is the number of tracks in the snapshot; Loaded how many re-resolved.
	Requested int
	Loaded    int

	// Reason is a short human-readable explanation for non-resumed outcomes.
	Reason string

	// Err is set for Failed and Cancelled outcomes, and wraps
	// types.ErrPartialResumeFailure or types.ErrTotalResumeFailure when tracks were lost.
	Err error
}

// Report is the result of one resumption run.
type Report struct {
	Guilds   []GuildReport
	Duration time.Duration
}

// Count returns the number of guilds that ended in outcome.
func (r Report) Count(outcome Outcome) int {
	n := 0
	for _, g := range r.Guilds {
		if g.Outcome == outcome {
			n++
		}
	}

	return n
}

// Guild returns the report for guildID.
func (r Report) Guild(guildID string) (GuildReport, bool) {
	for _, g := range r.Guilds {
		if g.GuildID == guildID {
			return g, true
		}
	}

	return GuildReport{}, false
}
