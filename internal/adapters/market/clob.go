package market

// clob.go — public (unauthenticated) CLOB market data.

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nbahedge/tradeengine/internal/domain"
)

const booksPath = "/books"

// GetOrderBook fetches the aggregated book for a single token via the CLOB's
// batch /books endpoint (batch size 1 — the teacher's concurrent
// multi-token fan-out in FetchOrderBooks is unneeded for a single-token
// call; the scheduler's own worker pool provides the concurrency across
// tokens instead).
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	body := []orderBookRequest{{TokenID: tokenID}}

	var resp []orderBookResponse
	url := c.clobBase + booksPath
	if err := c.post(ctx, c.bookLimiter, url, body, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("market.GetOrderBook: %w", err)
	}
	if len(resp) == 0 {
		return domain.OrderBook{TokenID: tokenID}, nil
	}
	return mapOrderBook(resp[0]), nil
}

// GetPrice is a thin convenience wrapper returning just the book's liquidity
// summary, for callers that don't need the full depth ladder.
func (c *Client) GetPrice(ctx context.Context, tokenID string) (domain.LiquiditySnapshot, error) {
	ob, err := c.GetOrderBook(ctx, tokenID)
	if err != nil {
		return domain.LiquiditySnapshot{}, err
	}
	return ob.Liquidity(), nil
}

func mapOrderBook(r orderBookResponse) domain.OrderBook {
	return domain.OrderBook{
		TokenID: r.AssetID,
		Bids:    mapBookEntries(r.Bids),
		Asks:    mapBookEntries(r.Asks),
	}
}

func mapBookEntries(raw []bookEntryRaw) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, e := range raw {
		price, err1 := strconv.ParseFloat(e.Price, 64)
		size, err2 := strconv.ParseFloat(e.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}
	return entries
}
