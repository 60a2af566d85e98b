package market

// paper.go — a read-only adapter over Client satisfying the full
// ports.MarketClient contract for dry-run/paper mode, where the scheduler
// must still read live prices and order books (spec §4.6 steps 1-3 run
// identically in every mode) but never reaches a placement endpoint
// (internal/application/scheduler/placement.go routes PlaceLimitBuy calls
// to a simulated fill before they would ever land here). Grounded on the
// teacher's split between ports.BookProvider (price/book reads) and
// ports.OrderExecutor (placement) across two narrower interfaces; this
// engine's single ports.MarketClient forces one concrete type to implement
// both, so the placement half is a deliberate "never called" guard rather
// than a working implementation.

import (
	"context"
	"fmt"

	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

var _ ports.MarketClient = (*PaperClient)(nil)

// PaperClient wraps the unauthenticated CLOB read client with a configured
// simulated bankroll, for dry-run/paper ticks that never sign or submit a
// real order.
type PaperClient struct {
	*Client
	bankrollUSD float64
}

// NewPaperClient builds a PaperClient. bankrollUSD stands in for the
// on-chain USDC.e balance a live wallet would report (spec §4.2's sizer
// input), since paper/dry-run mode has no wallet to query.
func NewPaperClient(clobBase string, bankrollUSD float64) *PaperClient {
	return &PaperClient{Client: NewClient(clobBase), bankrollUSD: bankrollUSD}
}

// GetBalance returns the configured paper bankroll.
func (p *PaperClient) GetBalance(ctx context.Context) (float64, error) {
	return p.bankrollUSD, nil
}

// PlaceLimitBuy is never reached in dry-run/paper mode — the scheduler
// simulates the fill itself before calling through to a MarketClient (see
// placement.go). A non-nil error here is a programming-error backstop, not
// a supported code path.
func (p *PaperClient) PlaceLimitBuy(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	return domain.PlacedOrder{}, fmt.Errorf("market.PaperClient: PlaceLimitBuy called outside live mode")
}

// CancelOrder is never reached in dry-run/paper mode (spec §4.5: the order
// manager only runs live).
func (p *PaperClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return false, fmt.Errorf("market.PaperClient: CancelOrder called outside live mode")
}

// GetOrder is never reached in dry-run/paper mode.
func (p *PaperClient) GetOrder(ctx context.Context, orderID string) (domain.OrderState, error) {
	return domain.OrderState{}, fmt.Errorf("market.PaperClient: GetOrder called outside live mode")
}

// CancelAndReplace is never reached in dry-run/paper mode.
func (p *PaperClient) CancelAndReplace(ctx context.Context, orderID, tokenID string, newPrice, newSize float64) (string, error) {
	return "", fmt.Errorf("market.PaperClient: CancelAndReplace called outside live mode")
}
