package ports

import (
	"context"
	"time"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// OrderManagerItem bundles a resting signal with the job deadline fields the
// order manager's TTL/cancel-reprice loop needs, without a join leaking into
// the domain package itself.
type OrderManagerItem struct {
	Signal        domain.Signal
	ExecuteBefore time.Time
}

// Store is the full persistence surface for the trade_job/signal/order_event/
// merge_operation/result/risk_snapshot tables (spec §3). A single
// *sql.DB-backed implementation lives in internal/adapters/storage; tests use
// an in-memory sqlite instance of the same implementation rather than a
// fake, per the teacher's own testing style.
type Store interface {
	// InsertJob creates a new trade_job row. The (event_slug, leg_side)
	// unique constraint (spec §3 invariant, §5 layer 3) makes a duplicate
	// insert a store-level error, not a caller-level check.
	InsertJob(ctx context.Context, job domain.Job) (int64, error)

	// GetJob fetches a single job by ID.
	GetJob(ctx context.Context, id int64) (domain.Job, error)

	// GetJobByEventSlugAndSide looks up the job for one leg of one game, if
	// it has already been created this run.
	GetJobByEventSlugAndSide(ctx context.Context, eventSlug string, side domain.LegSide) (domain.Job, bool, error)

	// ListDueJobs returns pending jobs whose execution window has opened,
	// ordered by tipoff_time ASC, event_slug ASC (spec §5's deterministic
	// ordering guarantee across ticks and processes).
	ListDueJobs(ctx context.Context, asOf time.Time) ([]domain.Job, error)

	// ListJobsByStatus returns every job currently in one status, in the
	// same tipoff/event_slug order as ListDueJobs.
	ListJobsByStatus(ctx context.Context, status domain.JobStatus) ([]domain.Job, error)

	// ListJobsByBothsideGroup returns the directional+hedge pair sharing a
	// bothside_group_id, for merge-pairing and settlement reconciliation.
	ListJobsByBothsideGroup(ctx context.Context, bothsideGroupID string) ([]domain.Job, error)

	// ClaimJob performs the row-level compare-and-swap
	// UPDATE trade_job SET status=? WHERE id=? AND status=? (spec §4.8,
	// §5 layer 2, §8 scenario 6). ok is false without error when another
	// process already claimed the job first.
	ClaimJob(ctx context.Context, jobID int64, from, to domain.JobStatus) (ok bool, err error)

	// UpdateJob persists the full row, used by the scheduler/executors for
	// everything outside the CAS-guarded status transition (merge status,
	// DCA progress counters, completion note, latest game status/score).
	UpdateJob(ctx context.Context, job domain.Job) error

	// InsertSignal creates a new signal row. Returns an error if a signal
	// for (job_id, dca_sequence) already exists — the dedup guard of §5
	// layer 4 is enforced by a unique constraint, not a race-prone
	// check-then-insert.
	InsertSignal(ctx context.Context, sig domain.Signal) (int64, error)

	// SignalExists reports whether a signal already exists for (jobID,
	// dcaSequence), for callers that want to skip building an order instead
	// of relying on the insert failing.
	SignalExists(ctx context.Context, jobID int64, dcaSequence int) (bool, error)

	// GetSignal fetches a single signal by ID.
	GetSignal(ctx context.Context, id int64) (domain.Signal, error)

	// ListSignalsByJob returns every signal for a job, ordered by
	// dca_sequence ASC.
	ListSignalsByJob(ctx context.Context, jobID int64) ([]domain.Signal, error)

	// ListOpenSignals returns every signal the order manager must still
	// watch (order_status in {pending, placed, partially_filled}), joined
	// with its job's execute_before deadline for the TTL reprice loop.
	ListOpenSignals(ctx context.Context) ([]OrderManagerItem, error)

	// UpdateSignal persists the full row. Callers are responsible for
	// checking domain.OrderStatus.CanAdvanceTo before changing OrderStatus;
	// the store does not re-derive or enforce monotonicity itself.
	UpdateSignal(ctx context.Context, sig domain.Signal) error

	// AppendOrderEvent records one append-only order-lifecycle event.
	AppendOrderEvent(ctx context.Context, ev domain.OrderEvent) error

	// InsertMergeOp records the outcome (simulated or executed) of one
	// merge attempt.
	InsertMergeOp(ctx context.Context, op domain.MergeOp) (int64, error)

	// InsertResult records the settlement outcome for one signal. Calling
	// this twice for the same signal is a caller bug; the unique
	// constraint on signal_id makes the second call fail rather than
	// silently double-count PnL.
	InsertResult(ctx context.Context, r domain.Result) (int64, error)

	// GetResultBySignal returns the settlement result for a signal, if any.
	GetResultBySignal(ctx context.Context, signalID int64) (domain.Result, bool, error)

	// ListResultsSince returns every result whose signal settled at or
	// after since, for the risk engine's pure PnL/streak/drawdown
	// calculations over the window.
	ListResultsSince(ctx context.Context, since time.Time) ([]domain.Result, error)

	// InsertRiskSnapshot appends one circuit-breaker snapshot.
	InsertRiskSnapshot(ctx context.Context, snap domain.RiskSnapshot) (int64, error)

	// LatestRiskSnapshot returns the most recently written snapshot, the
	// sole carrier of circuit-breaker state across ticks (spec §9: no
	// long-lived in-memory singleton).
	LatestRiskSnapshot(ctx context.Context) (domain.RiskSnapshot, bool, error)

	// Close releases the underlying connection.
	Close() error
}
