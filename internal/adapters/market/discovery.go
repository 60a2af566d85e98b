package market

// discovery.go — game discovery via the Gamma events API, grounded on the
// teacher's Gamma metadata client (gamma.go's batched GET /markets idiom),
// repurposed from condition-ID enrichment to NBA event discovery. Polymarket
// tags each NBA game event with a slug of the same "nba-{away}-{home}-date"
// shape the engine's own event_slug convention follows (spec §6), so the
// Gamma events list doubles as the schedule/score source of truth.

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

const (
	defaultGammaBase = "https://gamma-api.polymarket.com"
	gammaEventsPath  = "/events"
)

type gammaEvent struct {
	Slug      string        `json:"slug"`
	Title     string        `json:"title"`
	StartDate string        `json:"startDate"`
	Closed    bool          `json:"closed"`
	Active    bool          `json:"active"`
	Markets   []gammaMarket `json:"markets"`
}

type gammaMarket struct {
	ConditionID         string `json:"conditionId"`
	ClosedTime          string `json:"closedTime"`
	UmaResolutionStatus string `json:"umaResolutionStatus"`
	Outcomes            string `json:"outcomes"`      // JSON array of outcome names, e.g. `["Lakers","Celtics"]`
	OutcomePrices       string `json:"outcomePrices"`
	ClobTokenIds        string `json:"clobTokenIds"` // JSON array of token IDs, same order as Outcomes
}

// Discovery implements ports.GameDiscovery against the Gamma events feed.
type Discovery struct {
	client    *Client
	gammaBase string
}

var _ ports.GameDiscovery = (*Discovery)(nil)

// NewDiscovery builds a Discovery. gammaBase defaults to production Gamma.
func NewDiscovery(gammaBase string) *Discovery {
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	return &Discovery{client: NewClient(""), gammaBase: gammaBase}
}

// GetGames returns every NBA game event tagged for the given date
// (YYYY-MM-DD, US Eastern per spec §6's event_slug convention).
func (d *Discovery) GetGames(ctx context.Context, date string) ([]domain.GameInfo, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*3600)
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, fmt.Errorf("market.GetGames: bad date %q: %w", date, err)
	}
	start := day.UTC().Format(time.RFC3339)
	end := day.AddDate(0, 0, 1).Add(-time.Second).UTC().Format(time.RFC3339)
	url := fmt.Sprintf("%s%s?tag_slug=nba&start_date_min=%s&start_date_max=%s&limit=100",
		d.gammaBase, gammaEventsPath, start, end)

	var events []gammaEvent
	if err := d.client.get(ctx, d.client.clobLimiter, url, &events); err != nil {
		return nil, fmt.Errorf("market.GetGames: %w", err)
	}

	games := make([]domain.GameInfo, 0, len(events))
	for _, ev := range events {
		away, home, ok := parseMatchupSlug(ev.Slug)
		if !ok {
			continue
		}
		tipoff, _ := time.Parse(time.RFC3339, ev.StartDate)

		g := domain.GameInfo{
			AwayAbbr:  away,
			HomeAbbr:  home,
			TipoffUTC: tipoff,
			Status:    gameStatusFor(ev),
		}
		if len(ev.Markets) > 0 {
			g.ConditionID = ev.Markets[0].ConditionID
			g.Outcomes = parseOutcomes(ev.Markets[0])
		}
		games = append(games, g)
	}
	return games, nil
}

// parseOutcomes decodes a moneyline market's outcomes/clobTokenIds JSON
// arrays into the away/home token pair. Gamma lists a two-team moneyline
// market's outcomes in matchup order (away team first, home team second),
// the same convention the event slug itself follows (spec §6), so position
// rather than name-matching resolves each leg's token.
func parseOutcomes(m gammaMarket) []domain.Outcome {
	var names, tokenIDs []string
	if err := json.Unmarshal([]byte(m.Outcomes), &names); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(m.ClobTokenIds), &tokenIDs); err != nil {
		return nil
	}
	if len(names) < 2 || len(tokenIDs) < 2 {
		return nil
	}
	return []domain.Outcome{
		{TokenID: tokenIDs[0], Name: names[0]},
		{TokenID: tokenIDs[1], Name: names[1]},
	}
}

// parseMatchupSlug extracts away/home abbreviations from a
// "nba-{away}-{home}-YYYY-MM-DD" slug.
func parseMatchupSlug(slug string) (away, home string, ok bool) {
	parts := strings.Split(slug, "-")
	if len(parts) < 6 || parts[0] != "nba" {
		return "", "", false
	}
	return strings.ToUpper(parts[1]), strings.ToUpper(parts[2]), true
}

func gameStatusFor(ev gammaEvent) domain.GameStatus {
	switch {
	case ev.Closed:
		return domain.GameFinal
	case ev.Active:
		return domain.GameInProgress
	default:
		return domain.GameScheduled
	}
}
