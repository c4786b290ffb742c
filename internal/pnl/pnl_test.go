package pnl

import (
	"math"
	"testing"

	"signal-core/internal/signal"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestLongAdjustedPnl(t *testing.T) {
	c := Costs{FeePct: 0.1, SlippagePct: 0.1}

	adjEntry := AdjustedEntry(50000, signal.SideLong, c)
	if !almostEqual(adjEntry, 50100, 1e-9) {
		t.Fatalf("adjusted entry = %v, want 50100", adjEntry)
	}

	adjExit := AdjustedExit(51000, signal.SideLong, c)
	if !almostEqual(adjExit, 50898, 1e-9) {
		t.Fatalf("adjusted exit = %v, want 50898", adjExit)
	}

	pct := Percent(50000, 51000, signal.SideLong, c)
	if !almostEqual(pct, 1.5928, 1e-3) {
		t.Fatalf("pnl = %v, want about +1.5928 (not the naive +2.0)", pct)
	}
}

func TestShortSignFlip(t *testing.T) {
	c := Costs{FeePct: 0.1, SlippagePct: 0.1}

	// Short that moves down is a win.
	if pct := Percent(50000, 49000, signal.SideShort, c); pct <= 0 {
		t.Fatalf("winning short pnl = %v, want > 0", pct)
	}
	// Short that moves up is a loss.
	if pct := Percent(50000, 51000, signal.SideShort, c); pct >= 0 {
		t.Fatalf("losing short pnl = %v, want < 0", pct)
	}
}

func TestZeroCostsIsRawMove(t *testing.T) {
	pct := Percent(100, 102, signal.SideLong, Costs{})
	if !almostEqual(pct, 2.0, 1e-9) {
		t.Fatalf("pnl = %v, want 2.0", pct)
	}
}

func TestPercentIsStableAndFinite(t *testing.T) {
	c := Costs{FeePct: 0.05, SlippagePct: 0.02}
	first := Percent(1234.5, 1300.25, signal.SideLong, c)
	for i := 0; i < 10; i++ {
		if got := Percent(1234.5, 1300.25, signal.SideLong, c); got != first {
			t.Fatalf("pnl changed across evaluations: %v vs %v", got, first)
		}
	}
	if math.IsNaN(first) || math.IsInf(first, 0) {
		t.Fatalf("pnl is not finite: %v", first)
	}
}
