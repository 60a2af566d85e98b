package scheduler

// merge_executor.go — the merge/redeem executor (spec §4.3, §4.6 step 3-5):
// for every bothside pair holding unredeemed filled shares, evaluate the
// margin-floor gate, execute (or simulate) the on-chain merge, and credit
// each contributing signal's recovery proportionally. Grounded on the
// teacher's live/merge.go mergeCompletePairs: gate-then-execute-then-credit,
// generalized from a single pair-level credit to per-signal FIFO allocation
// across however many DCA entries contributed fills.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nbahedge/tradeengine/internal/application/mergepolicy"
	"github.com/nbahedge/tradeengine/internal/domain"
)

// runMergePass evaluates every open bothside group for merge eligibility and
// executes (or simulates) redemption where the economics clear. Merging
// never depends on the risk level: a gain already locked in should be
// realized regardless of the circuit breaker (spec §4.4 "never blocks
// settlement/merge").
func (s *Scheduler) runMergePass(ctx context.Context, now time.Time, snap domain.RiskSnapshot) (int, []string) {
	if !s.cfg.MergeEnabled {
		return 0, nil
	}

	groupIDs, err := s.openBothsideGroups(ctx)
	if err != nil {
		return 0, []string{fmt.Sprintf("merge: list groups: %v", err)}
	}

	var executed int
	var errs []string
	for _, groupID := range groupIDs {
		ok, err := s.mergeGroup(ctx, now, groupID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("merge group %s: %v", groupID, err))
			continue
		}
		if ok {
			executed++
		}
	}
	return executed, errs
}

// openBothsideGroups returns the distinct bothside_group_id values across
// every job still capable of holding mergeable shares (executing, dca_active,
// or executed — a directional leg can finish its own lifecycle well before
// its hedge counterpart does).
func (s *Scheduler) openBothsideGroups(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var ordered []string
	for _, status := range []domain.JobStatus{domain.JobExecuting, domain.JobDCAActive, domain.JobExecuted} {
		jobs, err := s.store.ListJobsByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("openBothsideGroups: list %s: %w", status, err)
		}
		for _, job := range jobs {
			if job.BothsideGroupID == "" || job.MergeStatus == domain.MergeExecuted {
				continue
			}
			if _, ok := seen[job.BothsideGroupID]; ok {
				continue
			}
			seen[job.BothsideGroupID] = struct{}{}
			ordered = append(ordered, job.BothsideGroupID)
		}
	}
	return ordered, nil
}

func (s *Scheduler) mergeGroup(ctx context.Context, now time.Time, groupID string) (bool, error) {
	pairJobs, err := s.store.ListJobsByBothsideGroup(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("list bothside group: %w", err)
	}
	var dirJob, hedgeJob domain.Job
	var haveDir, haveHedge bool
	for _, pj := range pairJobs {
		switch pj.LegSide {
		case domain.LegDirectional:
			dirJob, haveDir = pj, true
		case domain.LegHedge:
			hedgeJob, haveHedge = pj, true
		}
	}
	if !haveDir || !haveHedge {
		return false, nil
	}

	dirSigs, err := s.store.ListSignalsByJob(ctx, dirJob.ID)
	if err != nil {
		return false, fmt.Errorf("list directional signals: %w", err)
	}
	hedgeSigs, err := s.store.ListSignalsByJob(ctx, hedgeJob.ID)
	if err != nil {
		return false, fmt.Errorf("list hedge signals: %w", err)
	}

	// In paper/dry-run mode no on-chain executor is wired at all (spec §6:
	// merge simulation needs no wallet), so wallet support is judged against
	// the configured class alone; live mode requires the actual wired
	// executor to match it.
	walletSupported := s.cfg.WalletClass == domain.WalletEOA || s.cfg.WalletClass == domain.WalletProxy
	if s.cfg.Mode == ModeLive {
		walletSupported = s.merger != nil && s.merger.WalletClass() == s.cfg.WalletClass
	}

	alreadyMerged := sumMerged(dirSigs) + sumMerged(hedgeSigs)
	decision := mergepolicy.Evaluate(mergepolicy.Inputs{
		DirectionalFills: fillPoints(dirSigs),
		HedgeFills:       fillPoints(hedgeSigs),
		AlreadyMerged:    alreadyMerged,
		MinProfitUSD:     s.cfg.MergeMinProfitUSD,
		EstGasUSD:        s.cfg.MergeEstGasUSD,
		MinSharesFloor:   s.cfg.MergeMinSharesFloor,
		WalletSupported:  walletSupported,
	})
	if !decision.Eligible {
		return false, nil
	}

	var result domain.MergeResult
	var mergeErr error
	var opStatus domain.MergeOpStatus
	if s.cfg.Mode != ModeLive {
		result = domain.MergeResult{
			ConditionID:  dirJob.ConditionID,
			SharesMerged: decision.MergeableShares,
			USDCReceived: decision.TotalRecoveryUSD,
			Success:      true,
			ExecutedAt:   now,
		}
		opStatus = domain.MergeOpSimulated
	} else {
		result, mergeErr = s.retryMerge(ctx, dirJob.ConditionID, decision.MergeableShares)
		opStatus = domain.MergeOpExecuted
		if mergeErr != nil || !result.Success {
			opStatus = domain.MergeOpFailed
		}
	}

	pairID := dirJob.MergePairID
	if pairID == "" {
		pairID = uuid.New().String()
	}

	op := domain.MergeOp{
		EventSlug:    dirJob.EventSlug,
		MergePairID:  pairID,
		SharesMerged: decision.MergeableShares,
		CombinedVWAP: decision.CombinedVWAP,
		RecoveryUSD:  decision.TotalRecoveryUSD,
		GasCostUSD:   s.cfg.MergeEstGasUSD,
		Status:       opStatus,
		TxHash:       result.TxHash,
		ExecutedAt:   now,
	}
	if mergeErr != nil {
		op.Error = mergeErr.Error()
	} else if !result.Success {
		op.Error = result.Error
	}
	if _, insErr := s.store.InsertMergeOp(ctx, op); insErr != nil {
		return false, fmt.Errorf("insert merge op: %w", insErr)
	}

	if opStatus == domain.MergeOpFailed {
		return false, nil
	}

	if err := s.creditSignals(ctx, decision, dirSigs, hedgeSigs); err != nil {
		return false, fmt.Errorf("credit signals: %w", err)
	}

	dirJob.MergeStatus = domain.MergeSimulated
	hedgeJob.MergeStatus = domain.MergeSimulated
	if opStatus == domain.MergeOpExecuted {
		dirJob.MergeStatus = domain.MergeExecuted
		hedgeJob.MergeStatus = domain.MergeExecuted
	}
	dirJob.MergePairID = pairID
	hedgeJob.MergePairID = pairID
	dirJob.UpdatedAt = now
	hedgeJob.UpdatedAt = now
	if err := s.store.UpdateJob(ctx, dirJob); err != nil {
		return false, fmt.Errorf("update directional job: %w", err)
	}
	if err := s.store.UpdateJob(ctx, hedgeJob); err != nil {
		return false, fmt.Errorf("update hedge job: %w", err)
	}

	slog.Info("scheduler: merge executed", "event_slug", dirJob.EventSlug, "shares", decision.MergeableShares, "recovery_usd", decision.TotalRecoveryUSD, "mode", s.cfg.Mode)
	return true, nil
}

// retryMerge calls the configured on-chain merge executor, retrying
// transient failures up to MergeMaxRetries times (spec §4.6 step 4).
func (s *Scheduler) retryMerge(ctx context.Context, conditionID string, shares float64) (domain.MergeResult, error) {
	maxRetries := s.cfg.MergeMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	// NBA win/loss markets are always plain binary CTF conditions, never
	// neg-risk multi-outcome markets (that distinction lives at the market
	// level, not the wallet level — conflating the two made every
	// proxy-wallet live merge fail, since both executors reject negRisk=true
	// for lack of a parentCollectionId resolution).
	const negRisk = false

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err := s.merger.MergePositions(ctx, conditionID, shares, negRisk)
		if err == nil && result.Success {
			return result, nil
		}
		lastErr = err
		if err == nil {
			lastErr = fmt.Errorf("merge reported failure: %s", result.Error)
		}
		slog.Warn("scheduler: merge attempt failed", "attempt", attempt+1, "condition_id", conditionID, "err", lastErr)
	}
	return domain.MergeResult{ConditionID: conditionID, SharesMerged: shares}, lastErr
}

// creditSignals allocates a merge's recovered USD across the contributing
// signals and persists each signal's updated merge bookkeeping.
func (s *Scheduler) creditSignals(ctx context.Context, decision mergepolicy.Decision, dirSigs, hedgeSigs []domain.Signal) error {
	var contributors []mergepolicy.Contributor
	bySignal := make(map[int64]domain.Signal)
	for _, sig := range append(append([]domain.Signal{}, dirSigs...), hedgeSigs...) {
		avail := sig.RemainingShares()
		if avail <= 0 {
			continue
		}
		contributors = append(contributors, mergepolicy.Contributor{SignalID: sig.ID, AvailableShares: avail})
		bySignal[sig.ID] = sig
	}

	splits := mergepolicy.AllocateCredit(decision.MergeableShares, decision.RecoveryPerShare, contributors)
	for _, split := range splits {
		sig := bySignal[split.SignalID]
		sig.SharesMerged += split.SharesMerged
		sig.MergeRecoveryUSD += split.RecoveryUSD
		sig.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateSignal(ctx, sig); err != nil {
			return fmt.Errorf("update signal %d: %w", sig.ID, err)
		}
	}
	return nil
}

func fillPoints(sigs []domain.Signal) []domain.PricePoint {
	var fills []domain.PricePoint
	for _, sig := range sigs {
		if sig.FilledShares > 0 {
			fills = append(fills, domain.PricePoint{Price: sig.VWAPToDate, Shares: sig.FilledShares})
		}
	}
	return fills
}

func sumMerged(sigs []domain.Signal) float64 {
	var total float64
	for _, sig := range sigs {
		total += sig.SharesMerged
	}
	return total
}
