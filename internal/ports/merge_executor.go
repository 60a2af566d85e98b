package ports

import (
	"context"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// MergeExecutor executes on-chain CTF merge transactions. It supports two
// wallet classes tagged by domain.WalletClass (spec §6/§9): an EOA that
// signs directly, and a 1-of-1 proxy contract that signs and forwards.
// Multi-signature proxies are out of scope.
type MergeExecutor interface {
	// MergePositions merges amount (in USDC units / shares) of YES+NO tokens
	// for conditionID into USDC collateral on-chain.
	MergePositions(ctx context.Context, conditionID string, amount float64, negRisk bool) (domain.MergeResult, error)

	// EstimateGasCostUSD returns the current estimated gas cost in USD for a
	// merge transaction, refreshed opportunistically (Open Question 2).
	EstimateGasCostUSD(ctx context.Context) (float64, error)

	// EnsureApprovals verifies and sets the on-chain approvals the merge
	// path needs (ERC1155 + ERC20), idempotently. Called on startup.
	EnsureApprovals(ctx context.Context) error

	// WalletClass reports which of the two supported wallet kinds this
	// executor signs with.
	WalletClass() domain.WalletClass
}
