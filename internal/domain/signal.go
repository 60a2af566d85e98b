package domain

import "time"

// OrderStatus is a signal's order lifecycle state. It never regresses:
// placed -> filled is allowed, filled -> placed is not (spec §3 invariants).
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderPlaced          OrderStatus = "placed"
	OrderFilled          OrderStatus = "filled"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderExpired         OrderStatus = "expired"
	OrderPaper           OrderStatus = "paper"
)

// orderStatusRank gives OrderStatus a monotonicity ordering; Advance refuses
// any transition that would decrease rank.
var orderStatusRank = map[OrderStatus]int{
	OrderPending:         0,
	OrderPlaced:          1,
	OrderPartiallyFilled: 2,
	OrderFilled:          3,
	OrderPaper:           3,
	OrderCancelled:       4,
	OrderExpired:         4,
}

// CanAdvanceTo reports whether transitioning from s to next respects the
// never-regress invariant on order_status.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	return orderStatusRank[next] >= orderStatusRank[s]
}

// SignalRole distinguishes a directional entry from its hedge counterpart.
type SignalRole string

const (
	RoleDirectional SignalRole = "directional"
	RoleHedge       SignalRole = "hedge"
)

// Signal is one row per placed order intent (spec §3).
type Signal struct {
	ID                int64
	JobID             int64
	TokenID           string
	LimitPrice        float64
	RequestedSizeUSD  float64
	Shares            float64
	VWAPToDate        float64
	DCAGroupID        string
	OrderStatus       OrderStatus
	OrderPlacedAt     time.Time
	OrderOriginalPrice float64
	OrderReplaceCount int
	FeeRateBPS        float64
	FeeUSD            float64
	SharesMerged      float64
	MergeRecoveryUSD  float64
	SignalRole        SignalRole
	DCASequence       int
	ClobOrderID       string
	FilledShares      float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RemainingShares returns filled shares not yet redeemed via merge.
func (s Signal) RemainingShares() float64 {
	r := s.FilledShares - s.SharesMerged
	if r < 0 {
		return 0
	}
	return r
}

// Cost returns the filled cost basis at VWAP.
func (s Signal) Cost() float64 {
	return s.FilledShares * s.VWAPToDate
}

// EventType enumerates append-only order-event kinds (spec §3).
type EventType string

const (
	EventPlaced          EventType = "placed"
	EventFilled          EventType = "filled"
	EventPartiallyFilled EventType = "partially_filled"
	EventCancelled       EventType = "cancelled"
	EventReplaced        EventType = "replaced"
	EventExpired         EventType = "expired"
)

// OrderEvent is an immutable lifecycle transition log entry for a signal.
type OrderEvent struct {
	ID        int64
	SignalID  int64
	EventType EventType
	OldPrice  float64 // only meaningful for EventReplaced
	NewPrice  float64
	CreatedAt time.Time
}
