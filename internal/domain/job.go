package domain

import "time"

// LegSide distinguishes the favored side of a game from its hedge.
type LegSide string

const (
	LegDirectional LegSide = "directional"
	LegHedge       LegSide = "hedge"
)

// JobStatus is the trade_job lifecycle state (spec §4.8).
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobExecuting  JobStatus = "executing"
	JobDCAActive  JobStatus = "dca_active"
	JobExecuted   JobStatus = "executed"
	JobFailed     JobStatus = "failed"
	JobSkipped    JobStatus = "skipped"
	JobExpired    JobStatus = "expired"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether status allows no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobExecuted, JobFailed, JobSkipped, JobExpired, JobCancelled:
		return true
	default:
		return false
	}
}

// MergeStatus tracks a job's eligibility/outcome for on-chain redemption.
type MergeStatus string

const (
	MergeNone      MergeStatus = "none"
	MergeEligible  MergeStatus = "eligible"
	MergeSimulated MergeStatus = "simulated"
	MergeExecuted  MergeStatus = "executed"
	MergeFailed    MergeStatus = "failed"
	MergeSkipped   MergeStatus = "skipped"
)

// DCACompletionReason records why a dca_active job transitioned to executed,
// unifying the expiry and explicit-completion paths behind one terminal status
// (Open Question 1).
type DCACompletionReason string

const (
	DCATargetReached    DCACompletionReason = "target_reached"
	DCABudgetExhausted  DCACompletionReason = "budget_exhausted"
	DCAMaxEntries       DCACompletionReason = "max_entries"
	DCACutoff           DCACompletionReason = "cutoff"
)

// Job is one row of the trade_job table: one per (event_slug, leg_side) pair.
type Job struct {
	ID              int64
	EventSlug       string // "nba-{away}-{home}-YYYY-MM-DD"
	AwayAbbr        string
	HomeAbbr        string
	ConditionID     string // on-chain CTF condition backing this game's market
	TokenID         string // this leg's outcome token (resolved at discovery time)
	TipoffUTC       time.Time
	ExecuteAfter    time.Time
	ExecuteBefore   time.Time
	LegSide         LegSide
	Status          JobStatus
	RetryCount      int
	MergeStatus     MergeStatus
	DCAGroupID      string
	BothsideGroupID string
	MergePairID     string
	DCAEntriesDone  int
	DCALastEntryAt  time.Time
	DCAFirstPrice   float64
	CompletionNote  DCACompletionReason
	GameStatus      GameStatus
	HomeScore       int
	AwayScore       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SettleableAt reports whether the job's recorded game status is final.
// A market price that has already resolved does not make a job settleable
// by itself; the settlement pass reads the price only for jobs that pass
// this check (spec §4.7: postponed games are skipped, never force-resolved).
func (j Job) SettleableAt() bool {
	return j.GameStatus == GameFinal
}

// ReadyForDispatch reports whether the job sits inside its execution window
// and has not yet been claimed by another tick.
func (j Job) ReadyForDispatch(now time.Time) bool {
	return j.Status == JobPending && !now.Before(j.ExecuteAfter) && now.Before(j.ExecuteBefore)
}

// EventSlugFor builds the canonical event slug (spec §6): the tipoff date is
// expressed in US Eastern time, not UTC.
func EventSlugFor(awayAbbr, homeAbbr string, tipoffUTC time.Time) string {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*3600)
	}
	eastern := tipoffUTC.In(loc)
	return "nba-" + lower(awayAbbr) + "-" + lower(homeAbbr) + "-" + eastern.Format("2006-01-02")
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Outcome is one tradeable token belonging to a discovered game's market
// (spec §6 get_events: outcomes:[{token_id, name}]).
type Outcome struct {
	TokenID string
	Name    string
}

// GameInfo is the raw discovery record returned by the game-discovery
// collaborator (spec §6): get_games(date) -> [{away_abbr, home_abbr, ...}].
// ConditionID/Outcomes fold in the market-side get_events data the same
// discovery call resolves for this engine's Gamma-backed adapter, so the
// scheduler has everything it needs to open a job without a second
// collaborator round-trip.
type GameInfo struct {
	AwayAbbr    string
	HomeAbbr    string
	TipoffUTC   time.Time
	Status      GameStatus
	HomeScore   int
	AwayScore   int
	ConditionID string
	Outcomes    []Outcome // len 2: away token then home token, when resolved
}

// GameStatus distinguishes scheduled/in-progress/final/postponed games.
type GameStatus string

const (
	GameScheduled  GameStatus = "scheduled"
	GameInProgress GameStatus = "in_progress"
	GameFinal      GameStatus = "final"
	GamePostponed  GameStatus = "postponed"
)

// EventSlug returns the canonical event slug for this discovered game.
func (g GameInfo) EventSlug() string {
	return EventSlugFor(g.AwayAbbr, g.HomeAbbr, g.TipoffUTC)
}
