package onchain

// proxy.go — 1-of-1 proxy-wallet merge execution (domain.WalletProxy).
// Polymarket's proxy wallets hold the conditional tokens themselves; the
// owning EOA never touches them directly, it calls the proxy's batched
// `proxy(Call[])` entrypoint which forwards each call with the proxy as
// msg.sender. Everything else — gas pricing, receipt waiting, approval
// bookkeeping — is identical to the EOA path, so ProxyExecutor wraps an
// EOAExecutor and only changes what gets signed and where it's sent.

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

var proxyABI abi.ABI

func init() {
	var err error
	proxyABI, err = abi.JSON(strings.NewReader(`[{
		"name": "proxy",
		"type": "function",
		"inputs": [{
			"name": "calls",
			"type": "tuple[]",
			"components": [
				{"name": "typeCode", "type": "uint8"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "data", "type": "bytes"}
			]
		}],
		"outputs": []
	}]`))
	if err != nil {
		panic("onchain: proxy abi parse: " + err.Error())
	}
}

const proxyCallTypeCall = uint8(1) // CALL, as opposed to DELEGATECALL (0)

// ProxyExecutor implements ports.MergeExecutor by routing every call
// through the owner's 1-of-1 proxy wallet contract.
type ProxyExecutor struct {
	owner        *EOAExecutor
	proxyAddress common.Address
}

var _ ports.MergeExecutor = (*ProxyExecutor)(nil)

// NewProxyExecutor wraps an owner EOA executor with the proxy wallet it
// controls. ownerPrivateKeyHex signs transactions sent TO proxyAddressHex.
func NewProxyExecutor(rpcURL, ownerPrivateKeyHex, proxyAddressHex string) (*ProxyExecutor, error) {
	owner, err := NewEOAExecutor(rpcURL, ownerPrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewProxyExecutor: %w", err)
	}
	return &ProxyExecutor{
		owner:        owner,
		proxyAddress: common.HexToAddress(proxyAddressHex),
	}, nil
}

func (p *ProxyExecutor) WalletClass() domain.WalletClass { return domain.WalletProxy }

func (p *ProxyExecutor) EstimateGasCostUSD(ctx context.Context) (float64, error) {
	return p.owner.EstimateGasCostUSD(ctx)
}

// MergePositions wraps the same CTF mergePositions() calldata the EOA path
// uses inside a single-call proxy batch, signed and sent from the owner key
// but targeting the proxy contract so the proxy (holder of the conditional
// tokens) is msg.sender to the CTF.
func (p *ProxyExecutor) MergePositions(ctx context.Context, conditionID string, amount float64, negRisk bool) (domain.MergeResult, error) {
	if negRisk {
		return domain.MergeResult{}, fmt.Errorf("onchain.MergePositions: negRisk merges not supported (no parentCollectionId resolution)")
	}

	inner, err := mergeCalldata(conditionID, amount)
	if err != nil {
		return domain.MergeResult{}, fmt.Errorf("onchain.MergePositions: %w", err)
	}

	wrapped, err := p.wrapCall(common.HexToAddress(ctfAddress), inner)
	if err != nil {
		return domain.MergeResult{}, fmt.Errorf("onchain.MergePositions: wrap: %w", err)
	}

	result, err := p.owner.sendAndWait(ctx, p.proxyAddress, wrapped, mergeGasLimit+approvalGasLimit)
	if err != nil {
		return domain.MergeResult{ConditionID: conditionID, Success: false, Error: err.Error(), ExecutedAt: time.Now()}, err
	}

	return domain.MergeResult{
		ConditionID:  conditionID,
		TxHash:       result.txHash,
		SharesMerged: amount,
		GasCostUSD:   result.gasCostUSD,
		USDCReceived: amount,
		Success:      true,
		ExecutedAt:   time.Now(),
	}, nil
}

// EnsureApprovals grants the exchange contracts operator/allowance approval
// from the proxy's own token balances, each wrapped in a one-call batch.
func (p *ProxyExecutor) EnsureApprovals(ctx context.Context) error {
	for _, operator := range []string{normalExchange, negRiskExchange, negRiskAdapter} {
		approved, err := p.isApprovedForAll(ctx, operator)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check ctf approval %s: %w", operator, err)
		}
		if approved {
			continue
		}
		inner, err := erc1155ABI.Pack("setApprovalForAll", common.HexToAddress(operator), true)
		if err != nil {
			return err
		}
		wrapped, err := p.wrapCall(common.HexToAddress(ctfAddress), inner)
		if err != nil {
			return err
		}
		if _, err := p.owner.sendAndWait(ctx, p.proxyAddress, wrapped, approvalGasLimit+approvalGasLimit); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: set ctf approval %s: %w", operator, err)
		}
	}

	for _, spender := range []string{normalExchange, negRiskExchange} {
		allowance, err := p.erc20Allowance(ctx, spender)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check usdc allowance %s: %w", spender, err)
		}
		if allowance.Cmp(big.NewInt(1_000_000_000_000)) >= 0 {
			continue
		}
		maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
		inner, err := erc20ABI.Pack("approve", common.HexToAddress(spender), maxUint256)
		if err != nil {
			return err
		}
		wrapped, err := p.wrapCall(common.HexToAddress(usdcEAddress), inner)
		if err != nil {
			return err
		}
		if _, err := p.owner.sendAndWait(ctx, p.proxyAddress, wrapped, approvalGasLimit+approvalGasLimit); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: approve usdc %s: %w", spender, err)
		}
	}
	return nil
}

func (p *ProxyExecutor) isApprovedForAll(ctx context.Context, operator string) (bool, error) {
	return p.owner.isApprovedForAllFor(ctx, p.proxyAddress, operator)
}

func (p *ProxyExecutor) erc20Allowance(ctx context.Context, spender string) (*big.Int, error) {
	return p.owner.erc20AllowanceFor(ctx, p.proxyAddress, spender)
}

// wrapCall packs a single forwarded call into the proxy's batch ABI shape.
func (p *ProxyExecutor) wrapCall(to common.Address, data []byte) ([]byte, error) {
	type proxyCall struct {
		TypeCode uint8
		To       common.Address
		Value    *big.Int
		Data     []byte
	}
	calls := []proxyCall{{TypeCode: proxyCallTypeCall, To: to, Value: big.NewInt(0), Data: data}}
	return proxyABI.Pack("proxy", calls)
}
