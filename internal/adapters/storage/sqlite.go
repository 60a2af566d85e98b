package storage

// sqlite.go — persistence for the trade engine's six core tables
// (trade_job, signal, order_event, merge_operation, result, risk_snapshot).
//
// SQLite is opened single-writer (SetMaxOpenConns(1)) and in WAL mode: many
// short-lived tick processes may read concurrently, but writes are
// serialized through the one *sql.DB connection, which is what makes the
// row-level CAS claim on trade_job.status safe without an external lock.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS trade_job (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    event_slug        TEXT    NOT NULL,
    away_abbr         TEXT    NOT NULL,
    home_abbr         TEXT    NOT NULL,
    condition_id      TEXT    NOT NULL DEFAULT '',
    token_id          TEXT    NOT NULL DEFAULT '',
    tipoff_utc        DATETIME NOT NULL,
    execute_after     DATETIME NOT NULL,
    execute_before    DATETIME NOT NULL,
    leg_side          TEXT    NOT NULL,
    status            TEXT    NOT NULL DEFAULT 'pending',
    retry_count       INTEGER NOT NULL DEFAULT 0,
    merge_status      TEXT    NOT NULL DEFAULT 'none',
    dca_group_id      TEXT    NOT NULL DEFAULT '',
    bothside_group_id TEXT    NOT NULL DEFAULT '',
    merge_pair_id     TEXT    NOT NULL DEFAULT '',
    dca_entries_done  INTEGER NOT NULL DEFAULT 0,
    dca_last_entry_at DATETIME,
    dca_first_price   REAL    NOT NULL DEFAULT 0,
    completion_note   TEXT    NOT NULL DEFAULT '',
    game_status       TEXT    NOT NULL DEFAULT 'scheduled',
    home_score        INTEGER NOT NULL DEFAULT 0,
    away_score        INTEGER NOT NULL DEFAULT 0,
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL,
    UNIQUE(event_slug, leg_side)
);

CREATE INDEX IF NOT EXISTS idx_trade_job_due ON trade_job(status, tipoff_utc, event_slug);
CREATE INDEX IF NOT EXISTS idx_trade_job_bothside ON trade_job(bothside_group_id);

CREATE TABLE IF NOT EXISTS signal (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id              INTEGER NOT NULL,
    token_id            TEXT    NOT NULL,
    limit_price         REAL    NOT NULL,
    requested_size_usd  REAL    NOT NULL,
    shares              REAL    NOT NULL DEFAULT 0,
    vwap_to_date        REAL    NOT NULL DEFAULT 0,
    dca_group_id        TEXT    NOT NULL DEFAULT '',
    order_status        TEXT    NOT NULL DEFAULT 'pending',
    order_placed_at     DATETIME,
    order_original_price REAL   NOT NULL DEFAULT 0,
    order_replace_count INTEGER NOT NULL DEFAULT 0,
    fee_rate_bps        REAL    NOT NULL DEFAULT 0,
    fee_usd             REAL    NOT NULL DEFAULT 0,
    shares_merged       REAL    NOT NULL DEFAULT 0,
    merge_recovery_usd  REAL    NOT NULL DEFAULT 0,
    signal_role         TEXT    NOT NULL,
    dca_sequence        INTEGER NOT NULL DEFAULT 0,
    clob_order_id       TEXT    NOT NULL DEFAULT '',
    filled_shares       REAL    NOT NULL DEFAULT 0,
    created_at          DATETIME NOT NULL,
    updated_at          DATETIME NOT NULL,
    UNIQUE(job_id, dca_sequence)
);

CREATE INDEX IF NOT EXISTS idx_signal_job ON signal(job_id);
CREATE INDEX IF NOT EXISTS idx_signal_open ON signal(order_status);

CREATE TABLE IF NOT EXISTS order_event (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    signal_id   INTEGER NOT NULL,
    event_type  TEXT    NOT NULL,
    old_price   REAL    NOT NULL DEFAULT 0,
    new_price   REAL    NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_event_signal ON order_event(signal_id);

CREATE TABLE IF NOT EXISTS merge_operation (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    event_slug      TEXT    NOT NULL,
    merge_pair_id   TEXT    NOT NULL,
    shares_merged   REAL    NOT NULL,
    combined_vwap   REAL    NOT NULL,
    recovery_usd    REAL    NOT NULL,
    gas_cost_usd    REAL    NOT NULL DEFAULT 0,
    status          TEXT    NOT NULL,
    tx_hash         TEXT    NOT NULL DEFAULT '',
    error           TEXT    NOT NULL DEFAULT '',
    executed_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_merge_op_pair ON merge_operation(merge_pair_id);

CREATE TABLE IF NOT EXISTS result (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    signal_id         INTEGER NOT NULL UNIQUE,
    won               INTEGER NOT NULL,
    pnl_usd           REAL    NOT NULL,
    settlement_price  REAL    NOT NULL,
    score_home        INTEGER NOT NULL DEFAULT 0,
    score_away        INTEGER NOT NULL DEFAULT 0,
    settled_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_snapshot (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    ts                  DATETIME NOT NULL,
    level               TEXT    NOT NULL,
    sizing_multiplier   REAL    NOT NULL,
    daily_pnl           REAL    NOT NULL DEFAULT 0,
    weekly_pnl          REAL    NOT NULL DEFAULT 0,
    consec_losses       INTEGER NOT NULL DEFAULT 0,
    max_drawdown_pct    REAL    NOT NULL DEFAULT 0,
    drift_z_max         REAL    NOT NULL DEFAULT 0,
    degraded_mode       INTEGER NOT NULL DEFAULT 0,
    level_entered_at    DATETIME NOT NULL,
    acked_at            DATETIME,
    bank_high_water_usd REAL    NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_risk_snapshot_ts ON risk_snapshot(ts DESC);
`

// SQLiteStorage implements ports.Store using pure-Go SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ ports.Store = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the database at path and applies the
// schema. SQLite is single-writer: one open connection serializes every
// write, which is the mechanism the CAS claim on trade_job.status relies on.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the underlying connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// ─── Jobs ────────────────────────────────────────────────────────────────

func (s *SQLiteStorage) InsertJob(ctx context.Context, j domain.Job) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_job
		  (event_slug, away_abbr, home_abbr, condition_id, token_id, tipoff_utc, execute_after, execute_before,
		   leg_side, status, retry_count, merge_status, dca_group_id, bothside_group_id,
		   merge_pair_id, dca_entries_done, dca_last_entry_at, dca_first_price,
		   completion_note, game_status, home_score, away_score, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.EventSlug, j.AwayAbbr, j.HomeAbbr, j.ConditionID, j.TokenID, j.TipoffUTC.UTC(), j.ExecuteAfter.UTC(), j.ExecuteBefore.UTC(),
		string(j.LegSide), string(j.Status), j.RetryCount, string(j.MergeStatus), j.DCAGroupID, j.BothsideGroupID,
		j.MergePairID, j.DCAEntriesDone, nullTime(j.DCALastEntryAt), j.DCAFirstPrice,
		string(j.CompletionNote), string(j.GameStatus), j.HomeScore, j.AwayScore, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("storage.InsertJob: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStorage) GetJob(ctx context.Context, id int64) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelectCols+` FROM trade_job WHERE id=?`, id)
	return scanJob(row)
}

func (s *SQLiteStorage) GetJobByEventSlugAndSide(ctx context.Context, eventSlug string, side domain.LegSide) (domain.Job, bool, error) {
	row := s.db.QueryRowContext(ctx, jobSelectCols+` FROM trade_job WHERE event_slug=? AND leg_side=?`, eventSlug, string(side))
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("storage.GetJobByEventSlugAndSide: %w", err)
	}
	return j, true, nil
}

func (s *SQLiteStorage) ListDueJobs(ctx context.Context, asOf time.Time) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		jobSelectCols+` FROM trade_job WHERE status='pending' AND execute_after<=? AND execute_before>?
		 ORDER BY tipoff_utc ASC, event_slug ASC`, asOf.UTC(), asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.ListDueJobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *SQLiteStorage) ListJobsByStatus(ctx context.Context, status domain.JobStatus) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		jobSelectCols+` FROM trade_job WHERE status=? ORDER BY tipoff_utc ASC, event_slug ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("storage.ListJobsByStatus: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *SQLiteStorage) ListJobsByBothsideGroup(ctx context.Context, bothsideGroupID string) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		jobSelectCols+` FROM trade_job WHERE bothside_group_id=? ORDER BY leg_side ASC`, bothsideGroupID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListJobsByBothsideGroup: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ClaimJob performs the row-level compare-and-swap that makes concurrent
// dispatch safe across processes (spec §5 layer 2): the UPDATE only touches
// a row still in the expected from-status, so exactly one claimant wins.
func (s *SQLiteStorage) ClaimJob(ctx context.Context, jobID int64, from, to domain.JobStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trade_job SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(to), time.Now().UTC(), jobID, string(from))
	if err != nil {
		return false, fmt.Errorf("storage.ClaimJob: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.ClaimJob: rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStorage) UpdateJob(ctx context.Context, j domain.Job) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE trade_job SET
		  status=?, retry_count=?, merge_status=?, dca_group_id=?, bothside_group_id=?,
		  merge_pair_id=?, dca_entries_done=?, dca_last_entry_at=?, dca_first_price=?,
		  completion_note=?, game_status=?, home_score=?, away_score=?, updated_at=?
		WHERE id=?`,
		string(j.Status), j.RetryCount, string(j.MergeStatus), j.DCAGroupID, j.BothsideGroupID,
		j.MergePairID, j.DCAEntriesDone, nullTime(j.DCALastEntryAt), j.DCAFirstPrice,
		string(j.CompletionNote), string(j.GameStatus), j.HomeScore, j.AwayScore, time.Now().UTC(), j.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateJob: %w", err)
	}
	return nil
}

const jobSelectCols = `SELECT id, event_slug, away_abbr, home_abbr, condition_id, token_id, tipoff_utc, execute_after, execute_before,
	leg_side, status, retry_count, merge_status, dca_group_id, bothside_group_id, merge_pair_id,
	dca_entries_done, dca_last_entry_at, dca_first_price, completion_note, game_status,
	home_score, away_score, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var j domain.Job
	var legSide, status, mergeStatus, completionNote, gameStatus string
	var dcaLastEntryAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.EventSlug, &j.AwayAbbr, &j.HomeAbbr, &j.ConditionID, &j.TokenID, &j.TipoffUTC, &j.ExecuteAfter, &j.ExecuteBefore,
		&legSide, &status, &j.RetryCount, &mergeStatus, &j.DCAGroupID, &j.BothsideGroupID, &j.MergePairID,
		&j.DCAEntriesDone, &dcaLastEntryAt, &j.DCAFirstPrice, &completionNote, &gameStatus,
		&j.HomeScore, &j.AwayScore, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.LegSide = domain.LegSide(legSide)
	j.Status = domain.JobStatus(status)
	j.MergeStatus = domain.MergeStatus(mergeStatus)
	j.CompletionNote = domain.DCACompletionReason(completionNote)
	j.GameStatus = domain.GameStatus(gameStatus)
	if dcaLastEntryAt.Valid {
		j.DCALastEntryAt = dcaLastEntryAt.Time
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ─── Signals ─────────────────────────────────────────────────────────────

func (s *SQLiteStorage) InsertSignal(ctx context.Context, sig domain.Signal) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signal
		  (job_id, token_id, limit_price, requested_size_usd, shares, vwap_to_date, dca_group_id,
		   order_status, order_placed_at, order_original_price, order_replace_count, fee_rate_bps,
		   fee_usd, shares_merged, merge_recovery_usd, signal_role, dca_sequence, clob_order_id,
		   filled_shares, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sig.JobID, sig.TokenID, sig.LimitPrice, sig.RequestedSizeUSD, sig.Shares, sig.VWAPToDate, sig.DCAGroupID,
		string(sig.OrderStatus), nullTime(sig.OrderPlacedAt), sig.OrderOriginalPrice, sig.OrderReplaceCount,
		sig.FeeRateBPS, sig.FeeUSD, sig.SharesMerged, sig.MergeRecoveryUSD, string(sig.SignalRole),
		sig.DCASequence, sig.ClobOrderID, sig.FilledShares, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("storage.InsertSignal: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStorage) SignalExists(ctx context.Context, jobID int64, dcaSequence int) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signal WHERE job_id=? AND dca_sequence=?`, jobID, dcaSequence).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.SignalExists: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStorage) GetSignal(ctx context.Context, id int64) (domain.Signal, error) {
	row := s.db.QueryRowContext(ctx, signalSelectCols+` FROM signal WHERE id=?`, id)
	return scanSignal(row)
}

func (s *SQLiteStorage) ListSignalsByJob(ctx context.Context, jobID int64) ([]domain.Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		signalSelectCols+` FROM signal WHERE job_id=? ORDER BY dca_sequence ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListSignalsByJob: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

func (s *SQLiteStorage) ListOpenSignals(ctx context.Context) ([]ports.OrderManagerItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.job_id, s.token_id, s.limit_price, s.requested_size_usd, s.shares, s.vwap_to_date,
		       s.dca_group_id, s.order_status, s.order_placed_at, s.order_original_price,
		       s.order_replace_count, s.fee_rate_bps, s.fee_usd, s.shares_merged, s.merge_recovery_usd,
		       s.signal_role, s.dca_sequence, s.clob_order_id, s.filled_shares, s.created_at, s.updated_at,
		       j.execute_before
		FROM signal s JOIN trade_job j ON j.id = s.job_id
		WHERE s.order_status IN ('pending','placed','partially_filled')
		ORDER BY s.order_placed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListOpenSignals: %w", err)
	}
	defer rows.Close()

	var items []ports.OrderManagerItem
	for rows.Next() {
		sig, executeBefore, err := scanSignalWithDeadline(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListOpenSignals: scan: %w", err)
		}
		items = append(items, ports.OrderManagerItem{Signal: sig, ExecuteBefore: executeBefore})
	}
	return items, rows.Err()
}

func (s *SQLiteStorage) UpdateSignal(ctx context.Context, sig domain.Signal) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE signal SET
		  shares=?, vwap_to_date=?, order_status=?, order_placed_at=?, order_original_price=?,
		  order_replace_count=?, fee_rate_bps=?, fee_usd=?, shares_merged=?, merge_recovery_usd=?,
		  clob_order_id=?, filled_shares=?, updated_at=?
		WHERE id=?`,
		sig.Shares, sig.VWAPToDate, string(sig.OrderStatus), nullTime(sig.OrderPlacedAt), sig.OrderOriginalPrice,
		sig.OrderReplaceCount, sig.FeeRateBPS, sig.FeeUSD, sig.SharesMerged, sig.MergeRecoveryUSD,
		sig.ClobOrderID, sig.FilledShares, time.Now().UTC(), sig.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateSignal: %w", err)
	}
	return nil
}

const signalSelectCols = `SELECT id, job_id, token_id, limit_price, requested_size_usd, shares, vwap_to_date,
	dca_group_id, order_status, order_placed_at, order_original_price, order_replace_count,
	fee_rate_bps, fee_usd, shares_merged, merge_recovery_usd, signal_role, dca_sequence,
	clob_order_id, filled_shares, created_at, updated_at`

func scanSignal(row rowScanner) (domain.Signal, error) {
	sig, _, err := scanSignalCommon(row, false)
	return sig, err
}

func scanSignalWithDeadline(row rowScanner) (domain.Signal, time.Time, error) {
	return scanSignalCommon(row, true)
}

func scanSignalCommon(row rowScanner, withDeadline bool) (domain.Signal, time.Time, error) {
	var sig domain.Signal
	var orderStatus, signalRole string
	var orderPlacedAt sql.NullTime
	var executeBefore time.Time

	dest := []any{
		&sig.ID, &sig.JobID, &sig.TokenID, &sig.LimitPrice, &sig.RequestedSizeUSD, &sig.Shares, &sig.VWAPToDate,
		&sig.DCAGroupID, &orderStatus, &orderPlacedAt, &sig.OrderOriginalPrice, &sig.OrderReplaceCount,
		&sig.FeeRateBPS, &sig.FeeUSD, &sig.SharesMerged, &sig.MergeRecoveryUSD, &signalRole, &sig.DCASequence,
		&sig.ClobOrderID, &sig.FilledShares, &sig.CreatedAt, &sig.UpdatedAt,
	}
	if withDeadline {
		dest = append(dest, &executeBefore)
	}

	if err := row.Scan(dest...); err != nil {
		return sig, executeBefore, err
	}
	sig.OrderStatus = domain.OrderStatus(orderStatus)
	sig.SignalRole = domain.SignalRole(signalRole)
	if orderPlacedAt.Valid {
		sig.OrderPlacedAt = orderPlacedAt.Time
	}
	return sig, executeBefore, nil
}

func scanSignals(rows *sql.Rows) ([]domain.Signal, error) {
	var sigs []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan signal: %w", err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// ─── Order events ────────────────────────────────────────────────────────

func (s *SQLiteStorage) AppendOrderEvent(ctx context.Context, ev domain.OrderEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_event (signal_id, event_type, old_price, new_price, created_at) VALUES (?,?,?,?,?)`,
		ev.SignalID, string(ev.EventType), ev.OldPrice, ev.NewPrice, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage.AppendOrderEvent: %w", err)
	}
	return nil
}

// ─── Merge operations ────────────────────────────────────────────────────

func (s *SQLiteStorage) InsertMergeOp(ctx context.Context, op domain.MergeOp) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO merge_operation
		  (event_slug, merge_pair_id, shares_merged, combined_vwap, recovery_usd, gas_cost_usd,
		   status, tx_hash, error, executed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		op.EventSlug, op.MergePairID, op.SharesMerged, op.CombinedVWAP, op.RecoveryUSD, op.GasCostUSD,
		string(op.Status), op.TxHash, op.Error, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("storage.InsertMergeOp: %w", err)
	}
	return res.LastInsertId()
}

// ─── Results ─────────────────────────────────────────────────────────────

func (s *SQLiteStorage) InsertResult(ctx context.Context, r domain.Result) (int64, error) {
	won := 0
	if r.Won {
		won = 1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO result (signal_id, won, pnl_usd, settlement_price, score_home, score_away, settled_at)
		VALUES (?,?,?,?,?,?,?)`,
		r.SignalID, won, r.PnLUSD, r.SettlementPrice, r.ScoreHome, r.ScoreAway, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("storage.InsertResult: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStorage) GetResultBySignal(ctx context.Context, signalID int64) (domain.Result, bool, error) {
	var r domain.Result
	var won int
	var settledAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT id, signal_id, won, pnl_usd, settlement_price, score_home, score_away, settled_at
		 FROM result WHERE signal_id=?`, signalID,
	).Scan(&r.ID, &r.SignalID, &won, &r.PnLUSD, &r.SettlementPrice, &r.ScoreHome, &r.ScoreAway, &settledAt)
	if err == sql.ErrNoRows {
		return domain.Result{}, false, nil
	}
	if err != nil {
		return domain.Result{}, false, fmt.Errorf("storage.GetResultBySignal: %w", err)
	}
	r.Won = won != 0
	return r, true, nil
}

func (s *SQLiteStorage) ListResultsSince(ctx context.Context, since time.Time) ([]domain.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, signal_id, won, pnl_usd, settlement_price, score_home, score_away, settled_at
		 FROM result WHERE settled_at>=? ORDER BY settled_at ASC`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.ListResultsSince: %w", err)
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		var r domain.Result
		var won int
		var settledAt time.Time
		if err := rows.Scan(&r.ID, &r.SignalID, &won, &r.PnLUSD, &r.SettlementPrice, &r.ScoreHome, &r.ScoreAway, &settledAt); err != nil {
			return nil, fmt.Errorf("storage.ListResultsSince: scan: %w", err)
		}
		r.Won = won != 0
		results = append(results, r)
	}
	return results, rows.Err()
}

// ─── Risk snapshots ──────────────────────────────────────────────────────

func (s *SQLiteStorage) InsertRiskSnapshot(ctx context.Context, snap domain.RiskSnapshot) (int64, error) {
	degraded := 0
	if snap.DegradedMode {
		degraded = 1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_snapshot
		  (ts, level, sizing_multiplier, daily_pnl, weekly_pnl, consec_losses, max_drawdown_pct,
		   drift_z_max, degraded_mode, level_entered_at, acked_at, bank_high_water_usd)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		snap.Timestamp.UTC(), string(snap.Level), snap.SizingMultiplier, snap.DailyPnL, snap.WeeklyPnL,
		snap.ConsecLosses, snap.MaxDrawdownPct, snap.DriftZMax, degraded, snap.LevelEnteredAt.UTC(),
		nullTime(snap.AckedAt), snap.BankHighWaterUSD,
	)
	if err != nil {
		return 0, fmt.Errorf("storage.InsertRiskSnapshot: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStorage) LatestRiskSnapshot(ctx context.Context) (domain.RiskSnapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ts, level, sizing_multiplier, daily_pnl, weekly_pnl, consec_losses, max_drawdown_pct,
		       drift_z_max, degraded_mode, level_entered_at, acked_at, bank_high_water_usd
		FROM risk_snapshot ORDER BY ts DESC LIMIT 1`)

	var snap domain.RiskSnapshot
	var level string
	var degraded int
	var ackedAt sql.NullTime
	err := row.Scan(&snap.ID, &snap.Timestamp, &level, &snap.SizingMultiplier, &snap.DailyPnL, &snap.WeeklyPnL,
		&snap.ConsecLosses, &snap.MaxDrawdownPct, &snap.DriftZMax, &degraded, &snap.LevelEnteredAt, &ackedAt,
		&snap.BankHighWaterUSD)
	if err == sql.ErrNoRows {
		return domain.RiskSnapshot{}, false, nil
	}
	if err != nil {
		return domain.RiskSnapshot{}, false, fmt.Errorf("storage.LatestRiskSnapshot: %w", err)
	}
	snap.Level = domain.RiskLevel(level)
	snap.DegradedMode = degraded != 0
	if ackedAt.Valid {
		snap.AckedAt = ackedAt.Time
	}
	return snap, true, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
