package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"crest_go/internal/domain"
)

// Weights controls the composite quote score. Price dominates; reliability
// and latency break near-ties between makers quoting similar prices.
type Weights struct {
	Price       float64
	Reliability float64
	Latency     float64
}

// DefaultWeights is the production scoring mix.
var DefaultWeights = Weights{Price: 0.75, Reliability: 0.15, Latency: 0.10}

// scoredQuote is one validated in-window response with everything scoring
// needs. reliability is the maker's historical success rate captured before
// this round so the outcome does not depend on arrival order.
type scoredQuote struct {
	makerID     string
	quote       domain.SignedQuote
	latency     time.Duration
	arrivedAt   time.Time
	reliability float64
}

// scorePrecision is the decimal places used for score arithmetic. All
// comparisons happen on exact decimals, never floats.
const scorePrecision = 18

// selectBest returns the index of the winning quote. Score is a weighted
// sum of the price ratio against the best offer, historical reliability,
// and normalized response latency. Exact score ties go to the earliest
// arrival.
func selectBest(quotes []scoredQuote, w Weights, window time.Duration) int {
	bestOut := decimal.Zero
	for _, q := range quotes {
		out := decimal.NewFromBigInt(q.quote.Params.AmountOut, 0)
		if out.GreaterThan(bestOut) {
			bestOut = out
		}
	}

	wPrice := decimal.NewFromFloat(w.Price)
	wRel := decimal.NewFromFloat(w.Reliability)
	wLat := decimal.NewFromFloat(w.Latency)

	bestIdx := 0
	var bestScore decimal.Decimal
	for i, q := range quotes {
		score := scoreQuote(q, bestOut, wPrice, wRel, wLat, window)

		switch {
		case i == 0, score.GreaterThan(bestScore):
			bestIdx, bestScore = i, score
		case score.Equal(bestScore) && q.arrivedAt.Before(quotes[bestIdx].arrivedAt):
			bestIdx = i
		}
	}
	return bestIdx
}

func scoreQuote(q scoredQuote, bestOut, wPrice, wRel, wLat decimal.Decimal, window time.Duration) decimal.Decimal {
	out := decimal.NewFromBigInt(q.quote.Params.AmountOut, 0)
	price := out.DivRound(bestOut, scorePrecision)

	rel := decimal.NewFromFloat(q.reliability)

	// Latency normalized against the window: an instant response scores 1,
	// a response at the deadline scores 0.
	lat := decimal.NewFromInt(1)
	if window > 0 {
		frac := decimal.NewFromInt(q.latency.Microseconds()).
			DivRound(decimal.NewFromInt(window.Microseconds()), scorePrecision)
		lat = decimal.NewFromInt(1).Sub(frac)
		if lat.IsNegative() {
			lat = decimal.Zero
		}
	}

	return wPrice.Mul(price).Add(wRel.Mul(rel)).Add(wLat.Mul(lat))
}
