package onchain

// eoa.go — direct EOA-signed merge execution (domain.WalletEOA): the
// signing key IS the wallet that holds the conditional tokens, so
// mergePositions() is signed and broadcast straight from that key.

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

// EOAExecutor implements ports.MergeExecutor by signing and broadcasting
// transactions directly from the held private key.
type EOAExecutor struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	oracle     *gasOracle
}

var _ ports.MergeExecutor = (*EOAExecutor)(nil)

// NewEOAExecutor dials rpcURL and derives the signing address from
// privateKeyHex (no 0x prefix required).
func NewEOAExecutor(rpcURL, privateKeyHex string) (*EOAExecutor, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewEOAExecutor: dial: %w", err)
	}

	key, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewEOAExecutor: parse key: %w", err)
	}

	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("onchain.NewEOAExecutor: public key is not ECDSA")
	}

	return &EOAExecutor{
		client:     client,
		privateKey: key,
		address:    crypto.PubkeyToAddress(*pub),
		oracle:     newGasOracle(),
	}, nil
}

func (e *EOAExecutor) WalletClass() domain.WalletClass { return domain.WalletEOA }

// EstimateGasCostUSD returns the expected USD cost of one merge transaction
// at the currently cached gas price.
func (e *EOAExecutor) EstimateGasCostUSD(ctx context.Context) (float64, error) {
	gasPrice, err := e.oracle.gasPrice(ctx, e.client.SuggestGasPrice)
	if err != nil {
		return 0, fmt.Errorf("onchain.EstimateGasCostUSD: %w", err)
	}
	return gasCostUSD(gasPrice, mergeGasLimit, e.oracle.polPriceUSD()), nil
}

// MergePositions redeems conditionID's complete YES+NO pairs for USDC.e.
//
// negRisk merges are rejected: the NegRisk adapter needs a
// parentCollectionId derived from the neg-risk market's question ID, which
// this executor does not yet resolve. Routing those through the ordinary
// CTF contract would silently merge the wrong collection.
func (e *EOAExecutor) MergePositions(ctx context.Context, conditionID string, amount float64, negRisk bool) (domain.MergeResult, error) {
	if negRisk {
		return domain.MergeResult{}, fmt.Errorf("onchain.MergePositions: negRisk merges not supported (no parentCollectionId resolution)")
	}

	data, err := mergeCalldata(conditionID, amount)
	if err != nil {
		return domain.MergeResult{}, fmt.Errorf("onchain.MergePositions: %w", err)
	}

	result, err := e.sendAndWait(ctx, common.HexToAddress(ctfAddress), data, mergeGasLimit)
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

// EnsureApprovals grants the exchange contracts ERC1155 operator approval
// and USDC.e spend allowance, skipping any already in place.
func (e *EOAExecutor) EnsureApprovals(ctx context.Context) error {
	for _, operator := range []string{normalExchange, negRiskExchange, negRiskAdapter} {
		approved, err := e.isApprovedForAll(ctx, operator)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check ctf approval %s: %w", operator, err)
		}
		if approved {
			continue
		}
		if err := e.setApprovalForAll(ctx, operator); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: set ctf approval %s: %w", operator, err)
		}
	}

	for _, spender := range []string{normalExchange, negRiskExchange} {
		allowance, err := e.erc20Allowance(ctx, spender)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check usdc allowance %s: %w", spender, err)
		}
		if allowance.Cmp(big.NewInt(1_000_000_000_000)) >= 0 { // already >= 1M USDC.e
			continue
		}
		if err := e.erc20Approve(ctx, spender); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: approve usdc %s: %w", spender, err)
		}
	}
	return nil
}

func (e *EOAExecutor) isApprovedForAll(ctx context.Context, operator string) (bool, error) {
	data, err := erc1155ABI.Pack("isApprovedForAll", e.address, common.HexToAddress(operator))
	if err != nil {
		return false, err
	}
	ctfAddr := common.HexToAddress(ctfAddress)
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &ctfAddr, Data: data}, nil)
	if err != nil {
		return false, err
	}
	vals, err := erc1155ABI.Unpack("isApprovedForAll", out)
	if err != nil || len(vals) == 0 {
		return false, err
	}
	approved, _ := vals[0].(bool)
	return approved, nil
}

// isApprovedForAllFor checks CTF operator approval for an arbitrary holder
// address (used by ProxyExecutor to query its proxy's own approvals).
func (e *EOAExecutor) isApprovedForAllFor(ctx context.Context, holder common.Address, operator string) (bool, error) {
	data, err := erc1155ABI.Pack("isApprovedForAll", holder, common.HexToAddress(operator))
	if err != nil {
		return false, err
	}
	ctfAddr := common.HexToAddress(ctfAddress)
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &ctfAddr, Data: data}, nil)
	if err != nil {
		return false, err
	}
	vals, err := erc1155ABI.Unpack("isApprovedForAll", out)
	if err != nil || len(vals) == 0 {
		return false, err
	}
	approved, _ := vals[0].(bool)
	return approved, nil
}

// erc20AllowanceFor checks USDC.e allowance for an arbitrary holder address.
func (e *EOAExecutor) erc20AllowanceFor(ctx context.Context, holder common.Address, spender string) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", holder, common.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	usdc := common.HexToAddress(usdcEAddress)
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &usdc, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil || len(vals) == 0 {
		return nil, err
	}
	amt, _ := vals[0].(*big.Int)
	return amt, nil
}

func (e *EOAExecutor) setApprovalForAll(ctx context.Context, operator string) error {
	data, err := erc1155ABI.Pack("setApprovalForAll", common.HexToAddress(operator), true)
	if err != nil {
		return err
	}
	_, err = e.sendAndWait(ctx, common.HexToAddress(ctfAddress), data, approvalGasLimit)
	return err
}

func (e *EOAExecutor) erc20Allowance(ctx context.Context, spender string) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", e.address, common.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	usdc := common.HexToAddress(usdcEAddress)
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &usdc, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil || len(vals) == 0 {
		return nil, err
	}
	amt, _ := vals[0].(*big.Int)
	return amt, nil
}

func (e *EOAExecutor) erc20Approve(ctx context.Context, spender string) error {
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	data, err := erc20ABI.Pack("approve", common.HexToAddress(spender), maxUint256)
	if err != nil {
		return err
	}
	_, err = e.sendAndWait(ctx, common.HexToAddress(usdcEAddress), data, approvalGasLimit)
	return err
}

type sendResult struct {
	txHash     string
	gasCostUSD float64
}

// sendAndWait signs, broadcasts, and waits for the receipt of a single
// EIP-155 transaction from the executor's own address.
func (e *EOAExecutor) sendAndWait(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (sendResult, error) {
	nonce, err := e.client.PendingNonceAt(ctx, e.address)
	if err != nil {
		return sendResult{}, fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := e.oracle.gasPrice(ctx, e.client.SuggestGasPrice)
	if err != nil {
		return sendResult{}, fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)

	signer := types.NewEIP155Signer(big.NewInt(polygonChainID))
	signedTx, err := types.SignTx(tx, signer, e.privateKey)
	if err != nil {
		return sendResult{}, fmt.Errorf("sign: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return sendResult{}, fmt.Errorf("send: %w", err)
	}

	receipt, err := waitForReceipt(ctx, e.client, signedTx.Hash())
	if err != nil {
		return sendResult{}, fmt.Errorf("receipt: %w", err)
	}
	if receipt.Status == 0 {
		return sendResult{}, fmt.Errorf("transaction reverted: %s", signedTx.Hash().Hex())
	}

	return sendResult{
		txHash:     signedTx.Hash().Hex(),
		gasCostUSD: gasCostUSD(gasPrice, receipt.GasUsed, e.oracle.polPriceUSD()),
	}, nil
}

func gasCostUSD(gasPrice *big.Int, gasUsed uint64, polUSD float64) float64 {
	weiCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasUsed))
	polCost, _ := new(big.Float).Quo(new(big.Float).SetInt(weiCost), big.NewFloat(1e18)).Float64()
	return polCost * polUSD
}

func waitForReceipt(ctx context.Context, client *ethclient.Client, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for receipt: %s", txHash.Hex())
		case <-ticker.C:
			receipt, err := client.TransactionReceipt(ctx, txHash)
			if err == nil {
				return receipt, nil
			}
		}
	}
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
