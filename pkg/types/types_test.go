package types

import (
	"testing"
)

func TestSideOpposite(t *testing.T) {
	t.Parallel()
	if BUY.Opposite() != SELL {
		t.Errorf("BUY.Opposite() = %v, want SELL", BUY.Opposite())
	}
	if SELL.Opposite() != BUY {
		t.Errorf("SELL.Opposite() = %v, want BUY", SELL.Opposite())
	}
}

func TestSymbolForms(t *testing.T) {
	t.Parallel()
	s := Symbol{Base: "SUI", Quote: "USDT", TickDecimals: 4, StepDecimals: 1}
	if got := s.Pair(); got != "SUIUSDT" {
		t.Errorf("Pair() = %q, want SUIUSDT", got)
	}
	if got := s.Coin(); got != "SUI" {
		t.Errorf("Coin() = %q, want SUI", got)
	}
}

func TestDepthSnapshotMid(t *testing.T) {
	t.Parallel()
	d := DepthSnapshot{
		Bids: []PriceLevel{{Price: 1.99, Size: 10}},
		Asks: []PriceLevel{{Price: 2.01, Size: 10}},
	}
	mid, ok := d.Mid()
	if !ok {
		t.Fatal("expected mid price")
	}
	if mid != 2.0 {
		t.Errorf("Mid() = %v, want 2.0", mid)
	}

	if _, ok := (DepthSnapshot{}).Mid(); ok {
		t.Error("empty snapshot should not report a mid")
	}
}

func TestLadderInterleave(t *testing.T) {
	t.Parallel()
	l := Ladder{
		Bids: []Bin{{Price: 1.99, Size: 5}, {Price: 1.98, Size: 5}, {Price: 1.97, Size: 5}},
		Asks: []Bin{{Price: 2.01, Size: 4}, {Price: 2.02, Size: 4}},
	}

	orders := l.Interleave(10)
	want := []OrderRequest{
		{Side: SELL, Size: 4, Price: 2.01},
		{Side: BUY, Size: 5, Price: 1.99},
		{Side: SELL, Size: 4, Price: 2.02},
		{Side: BUY, Size: 5, Price: 1.98},
		{Side: BUY, Size: 5, Price: 1.97},
	}
	if len(orders) != len(want) {
		t.Fatalf("got %d orders, want %d", len(orders), len(want))
	}
	for i, o := range orders {
		if o != want[i] {
			t.Errorf("order[%d] = %+v, want %+v", i, o, want[i])
		}
	}
}

func TestLadderInterleaveTruncates(t *testing.T) {
	t.Parallel()
	l := Ladder{
		Bids: []Bin{{Price: 1.99, Size: 1}, {Price: 1.98, Size: 1}},
		Asks: []Bin{{Price: 2.01, Size: 1}, {Price: 2.02, Size: 1}},
	}
	orders := l.Interleave(3)
	if len(orders) != 3 {
		t.Fatalf("got %d orders, want 3", len(orders))
	}
	// First two alternate SELL/BUY, third is the next ask
	if orders[0].Side != SELL || orders[1].Side != BUY || orders[2].Side != SELL {
		t.Errorf("unexpected emit order: %+v", orders)
	}
}
