package ports

import "context"

// TickSummary is the per-tick report handed to the notifier (spec §6
// ancillary reporting/CLI glue).
type TickSummary struct {
	Mode            string
	JobsDiscovered  int
	JobsDispatched  int
	OrdersPlaced    int
	MergesExecuted  int
	SignalsSettled  int
	RiskLevel       string
	Errors          []string
}

// Notifier presents the outcome of a tick. Notification failures must never
// affect trading (spec §7) — callers wrap-and-swallow, never propagate.
type Notifier interface {
	Notify(ctx context.Context, summary TickSummary) error
}
