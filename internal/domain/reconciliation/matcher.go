package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scoring weights. The product gate dominates: a candidate for another
// product scores zero and can never be selected.
const (
	scoreProductMatch   = 50
	scoreQuantityExact  = 40
	scoreQuantityClose  = 30 // within 10% relative difference
	scoreQuantityNear   = 20 // within 20% relative difference
	scoreRecentShipment = 10

	// RecencyWindow is how fresh a shipment must be to earn recency points
	RecencyWindow = 7 * 24 * time.Hour
)

// LineFacts is the matcher's view of one invoice line
type LineFacts struct {
	ProductCode string
	Quantity    decimal.Decimal
}

// Candidate is an immutable snapshot of one open shipment line. Callers
// prefilter candidates to open lines (no invoice) of active shipments for
// the same client root tax-id; the matcher only scores.
type Candidate struct {
	LineID            uuid.UUID
	LotID             uuid.UUID
	OrderNumber       string
	ProductCode       string
	AllocatedQuantity decimal.Decimal
	LineCreatedAt     time.Time
	ShipmentCreatedAt time.Time
}

// MatchResult is the outcome of scoring one candidate set
type MatchResult struct {
	Candidate Candidate
	Score     int
}

// Matcher scores invoice lines against open shipment lines. It is a pure
// read-side service: no repository access, no side effects.
type Matcher struct {
	now func() time.Time
}

// MatcherOption configures a Matcher
type MatcherOption func(*Matcher)

// WithClock overrides the matcher's clock (tests)
func WithClock(now func() time.Time) MatcherOption {
	return func(m *Matcher) {
		m.now = now
	}
}

// NewMatcher creates a matcher
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FindBestMatch returns the candidate with the strictly highest positive
// score, or ok=false when no candidate scores above zero. Equal scores are
// broken deterministically by earliest shipment-line creation time, then by
// lowest line ID, so repeated invocations over the same set always pick the
// same candidate regardless of iteration order.
func (m *Matcher) FindBestMatch(line LineFacts, candidates []Candidate) (MatchResult, bool) {
	best := MatchResult{}
	found := false
	now := m.now()

	for _, c := range candidates {
		score := m.Score(line, c, now)
		if score <= 0 {
			continue
		}
		if !found || score > best.Score || (score == best.Score && tieBreakBefore(c, best.Candidate)) {
			best = MatchResult{Candidate: c, Score: score}
			found = true
		}
	}
	return best, found
}

// Score computes the match score of one candidate at the given instant
func (m *Matcher) Score(line LineFacts, c Candidate, now time.Time) int {
	if c.ProductCode != line.ProductCode {
		return 0
	}
	score := scoreProductMatch
	score += quantityScore(line.Quantity, c.AllocatedQuantity)
	if now.Sub(c.ShipmentCreatedAt) <= RecencyWindow {
		score += scoreRecentShipment
	}
	return score
}

// quantityScore grades how close the allocated quantity is to the invoiced
// one, relative to the invoiced quantity
func quantityScore(invoiced, allocated decimal.Decimal) int {
	if allocated.Equal(invoiced) {
		return scoreQuantityExact
	}
	if !invoiced.IsPositive() {
		return 0
	}
	diff := allocated.Sub(invoiced).Abs().Div(invoiced)
	switch {
	case diff.LessThanOrEqual(decimal.NewFromFloat(0.10)):
		return scoreQuantityClose
	case diff.LessThanOrEqual(decimal.NewFromFloat(0.20)):
		return scoreQuantityNear
	}
	return 0
}

// tieBreakBefore reports whether a wins a score tie against b
func tieBreakBefore(a, b Candidate) bool {
	if !a.LineCreatedAt.Equal(b.LineCreatedAt) {
		return a.LineCreatedAt.Before(b.LineCreatedAt)
	}
	return a.LineID.String() < b.LineID.String()
}
