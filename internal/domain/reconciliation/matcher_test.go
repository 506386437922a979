package reconciliation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var matcherNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClockMatcher() *Matcher {
	return NewMatcher(WithClock(func() time.Time { return matcherNow }))
}

func candidateFor(product string, allocated int64, shipmentAge time.Duration) Candidate {
	return Candidate{
		LineID:            uuid.New(),
		LotID:             uuid.New(),
		OrderNumber:       "PED-100",
		ProductCode:       product,
		AllocatedQuantity: decimal.NewFromInt(allocated),
		LineCreatedAt:     matcherNow.Add(-shipmentAge),
		ShipmentCreatedAt: matcherNow.Add(-shipmentAge),
	}
}

func TestMatcher_ExactQuantityRecentShipment(t *testing.T) {
	m := fixedClockMatcher()
	line := LineFacts{ProductCode: "P1", Quantity: decimal.NewFromInt(100)}
	cand := candidateFor("P1", 100, 48*time.Hour)

	result, ok := m.FindBestMatch(line, []Candidate{cand})

	require.True(t, ok)
	assert.Equal(t, 100, result.Score) // 50 product + 40 exact + 10 recency
	assert.Equal(t, cand.LineID, result.Candidate.LineID)
}

func TestMatcher_ExactQuantityOldShipment(t *testing.T) {
	m := fixedClockMatcher()
	line := LineFacts{ProductCode: "P1", Quantity: decimal.NewFromInt(100)}
	cand := candidateFor("P1", 100, 30*24*time.Hour)

	result, ok := m.FindBestMatch(line, []Candidate{cand})

	require.True(t, ok)
	assert.Equal(t, 90, result.Score) // 50 product + 40 exact
}

func TestMatcher_QuantityWithinTwentyPercent(t *testing.T) {
	m := fixedClockMatcher()
	line := LineFacts{ProductCode: "P1", Quantity: decimal.NewFromInt(100)}
	cand := candidateFor("P1", 85, 30*24*time.Hour) // 15% off

	result, ok := m.FindBestMatch(line, []Candidate{cand})

	require.True(t, ok)
	assert.Equal(t, 70, result.Score) // 50 product + 20 near
}

func TestMatcher_QuantityWithinTenPercent(t *testing.T) {
	m := fixedClockMatcher()
	line := LineFacts{ProductCode: "P1", Quantity: decimal.NewFromInt(100)}
	cand := candidateFor("P1", 95, 30*24*time.Hour)

	result, ok := m.FindBestMatch(line, []Candidate{cand})

	require.True(t, ok)
	assert.Equal(t, 80, result.Score) // 50 product + 30 close
}

func TestMatcher_QuantityFarOff(t *testing.T) {
	m := fixedClockMatcher()
	line := LineFacts{ProductCode: "P1", Quantity: decimal.NewFromInt(100)}
	cand := candidateFor("P1", 40, 30*24*time.Hour)

	result, ok := m.FindBestMatch(line, []Candidate{cand})

	require.True(t, ok)
	assert.Equal(t, 50, result.Score) // product gate only
}

func TestMatcher_ProductGateBlocksOtherProducts(t *testing.T) {
	m := fixedClockMatcher()
	line := LineFacts{ProductCode: "P2", Quantity: decimal.NewFromInt(10)}
	cand := candidateFor("P1", 10, time.Hour)

	_, ok := m.FindBestMatch(line, []Candidate{cand})

	assert.False(t, ok)
}

func TestMatcher_NoCandidates(t *testing.T) {
	m := fixedClockMatcher()
	line := LineFacts{ProductCode: "P1", Quantity: decimal.NewFromInt(10)}

	_, ok := m.FindBestMatch(line, nil)

	assert.False(t, ok)
}

func TestMatcher_PicksHighestScore(t *testing.T) {
	m := fixedClockMatcher()
	line := LineFacts{ProductCode: "P1", Quantity: decimal.NewFromInt(100)}
	far := candidateFor("P1", 60, time.Hour)
	exact := candidateFor("P1", 100, time.Hour)

	result, ok := m.FindBestMatch(line, []Candidate{far, exact})

	require.True(t, ok)
	assert.Equal(t, exact.LineID, result.Candidate.LineID)
}

func TestMatcher_TieBreakPrefersEarliestLine(t *testing.T) {
	m := fixedClockMatcher()
	line := LineFacts{ProductCode: "P1", Quantity: decimal.NewFromInt(100)}
	older := candidateFor("P1", 100, 72*time.Hour)
	newer := candidateFor("P1", 100, 24*time.Hour)

	// Same score either way round; the earlier-created line must win.
	result, ok := m.FindBestMatch(line, []Candidate{newer, older})
	require.True(t, ok)
	assert.Equal(t, older.LineID, result.Candidate.LineID)

	result, ok = m.FindBestMatch(line, []Candidate{older, newer})
	require.True(t, ok)
	assert.Equal(t, older.LineID, result.Candidate.LineID)
}

func TestMatcher_Deterministic(t *testing.T) {
	m := fixedClockMatcher()
	line := LineFacts{ProductCode: "P1", Quantity: decimal.NewFromInt(100)}
	candidates := []Candidate{
		candidateFor("P1", 92, 48*time.Hour),
		candidateFor("P1", 100, 20*24*time.Hour),
		candidateFor("P2", 100, time.Hour),
	}

	first, ok := m.FindBestMatch(line, candidates)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, ok := m.FindBestMatch(line, candidates)
		require.True(t, ok)
		assert.Equal(t, first.Candidate.LineID, again.Candidate.LineID)
		assert.Equal(t, first.Score, again.Score)
	}
}

func TestMatcher_ZeroInvoicedQuantityOnlyPassesGate(t *testing.T) {
	m := fixedClockMatcher()
	line := LineFacts{ProductCode: "P1", Quantity: decimal.Zero}
	cand := candidateFor("P1", 50, 30*24*time.Hour)

	result, ok := m.FindBestMatch(line, []Candidate{cand})

	require.True(t, ok)
	assert.Equal(t, 50, result.Score)
}
