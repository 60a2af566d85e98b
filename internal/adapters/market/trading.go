package market

// trading.go — order placement/lifecycle via the authenticated CLOB API.
// All maker orders are GTC (good-till-cancelled) limit BUYs (spec §4.5: the
// engine never sells — hedges and DCA follow-ons are all additional BUYs).

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

const (
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
)

var _ ports.MarketClient = (*TradingClient)(nil)

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("market: balanceOf abi: " + err.Error())
	}
}

// TradingClient implements ports.MarketClient.
type TradingClient struct {
	auth      *AuthClient
	rpcClient *ethclient.Client
}

// NewTradingClient builds a TradingClient. rpcURL backs on-chain balance reads.
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("market.NewTradingClient: dial rpc: %w", err)
	}
	return &TradingClient{auth: auth, rpcClient: rpc}, nil
}

// GetPrice delegates to the embedded AuthClient's unauthenticated book read.
func (tc *TradingClient) GetPrice(ctx context.Context, tokenID string) (domain.LiquiditySnapshot, error) {
	return tc.auth.GetPrice(ctx, tokenID)
}

// GetOrderBook delegates to the embedded AuthClient's unauthenticated book read.
func (tc *TradingClient) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	return tc.auth.GetOrderBook(ctx, tokenID)
}

// PlaceLimitBuy signs and submits a maker BUY limit order.
func (tc *TradingClient) PlaceLimitBuy(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("market.PlaceLimitBuy: creds: %w", err)
	}

	signed, err := tc.auth.buildSignedOrder(req.TokenID, req.Price, req.Size, req.NegRisk)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("market.PlaceLimitBuy: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          signed.Order.Salt.String(),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          "BUY",
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.creds.APIKey,
		OrderType: "GTC",
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("market.PlaceLimitBuy: post: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, fmt.Errorf("market.PlaceLimitBuy: clob error: %s", resp.ErrorMsg)
	}

	return domain.PlacedOrder{
		OrderID:     resp.OrderID,
		Status:      resp.Status,
		TakenAmount: parseUSDC(resp.TakingAmount),
		MadeAmount:  parseUSDC(resp.MakingAmount),
	}, nil
}

// CancelOrder cancels a single resting order by CLOB order ID.
func (tc *TradingClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return false, fmt.Errorf("market.CancelOrder: creds: %w", err)
	}
	if err := tc.auth.doL2(ctx, http.MethodDelete, "/order/"+orderID, nil, nil); err != nil {
		return false, fmt.Errorf("market.CancelOrder %s: %w", orderID, err)
	}
	return true, nil
}

// GetOrder returns the current fill state of an order.
func (tc *TradingClient) GetOrder(ctx context.Context, orderID string) (domain.OrderState, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.OrderState{}, fmt.Errorf("market.GetOrder: creds: %w", err)
	}

	var resp clobOrderStateResponse
	if err := tc.auth.doL2(ctx, http.MethodGet, "/data/order/"+orderID, nil, &resp); err != nil {
		return domain.OrderState{}, fmt.Errorf("market.GetOrder %s: %w", orderID, err)
	}

	avgPrice := parseFloat(resp.Price)
	return domain.OrderState{
		Status:       resp.Status,
		FilledShares: parseFloat(resp.SizeMatched),
		AvgPrice:     avgPrice,
		FeeRateBPS:   parseFloat(resp.MakerFeeBps),
	}, nil
}

// CancelAndReplace cancels orderID and places a new maker BUY at the given
// price/size, returning the new order ID. The CLOB has no atomic
// cancel-replace primitive, so this does the two calls back to back; the
// order manager is responsible for treating the gap as a window where no
// resting order exists (spec §4.5).
func (tc *TradingClient) CancelAndReplace(ctx context.Context, orderID, tokenID string, newPrice, newSize float64) (string, error) {
	if _, err := tc.CancelOrder(ctx, orderID); err != nil {
		return "", fmt.Errorf("market.CancelAndReplace: cancel: %w", err)
	}

	negRisk, err := tc.isNegRisk(ctx, tokenID)
	if err != nil {
		negRisk = false
	}

	placed, err := tc.PlaceLimitBuy(ctx, domain.PlaceOrderRequest{
		TokenID: tokenID,
		Price:   newPrice,
		Size:    newSize,
		NegRisk: negRisk,
	})
	if err != nil {
		return "", fmt.Errorf("market.CancelAndReplace: place: %w", err)
	}
	return placed.OrderID, nil
}

func (tc *TradingClient) isNegRisk(ctx context.Context, tokenID string) (bool, error) {
	url := fmt.Sprintf("%s/neg-risk?token_id=%s", tc.auth.clobBase, tokenID)
	var resp clobNegRiskResponse
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, url, &resp); err != nil {
		return false, fmt.Errorf("market.isNegRisk: %w", err)
	}
	return resp.NegRisk, nil
}

// GetBalance returns the on-chain USDC.e balance of the signing address.
func (tc *TradingClient) GetBalance(ctx context.Context) (float64, error) {
	callData, err := balanceOfABI.Pack("balanceOf", tc.auth.address)
	if err != nil {
		return 0, fmt.Errorf("market.GetBalance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("market.GetBalance: rpc call: %w", err)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("market.GetBalance: unpack: %w", err)
	}

	raw := vals[0].(*big.Int)
	bal, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return bal, nil
}

func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	n := new(big.Int)
	n.SetString(s, 10)
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 1_000_000
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	var f float64
	fmt.Sscanf(s, "%f", &f)
	return f
}
