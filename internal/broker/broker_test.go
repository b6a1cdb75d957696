package broker

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyBuy(t *testing.T) {
	tests := []struct {
		name       string
		cash       string
		commission string
		qty        string
		price      string
		want       bool
		wantCash   string
		wantPos    string
	}{
		{
			name: "1. Exact affordability, no fee",
			cash: "100", commission: "0",
			qty: "10", price: "10",
			want: true, wantCash: "0", wantPos: "10",
		},
		{
			name: "2. Fee pushes cost over cash",
			cash: "100", commission: "0.01",
			qty: "10", price: "10",
			want: false, wantCash: "100", wantPos: "0",
		},
		{
			name: "3. Fee covered",
			cash: "101", commission: "0.01",
			qty: "10", price: "10",
			want: true, wantCash: "0", wantPos: "10",
		},
		{
			name: "4. Insufficient cash is a no-op",
			cash: "49.99", commission: "0",
			qty: "10", price: "5",
			want: false, wantCash: "49.99", wantPos: "0",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := New(d(tt.cash), d(tt.commission))

			if got := b.ApplyBuy("BTCUSDT", d(tt.qty), d(tt.price)); got != tt.want {
				t.Errorf("ApplyBuy() = %v, want %v", got, tt.want)
			}
			if !b.Cash().Equal(d(tt.wantCash)) {
				t.Errorf("cash = %v, want %v", b.Cash(), tt.wantCash)
			}
			if !b.Position("BTCUSDT").Equal(d(tt.wantPos)) {
				t.Errorf("position = %v, want %v", b.Position("BTCUSDT"), tt.wantPos)
			}
		})
	}
}

func TestApplySell(t *testing.T) {
	tests := []struct {
		name       string
		commission string
		position   string
		qty        string
		price      string
		want       bool
		wantCash   string
		wantPos    string
	}{
		{
			name:       "1. Full position sold, no fee",
			commission: "0",
			position:   "10", qty: "10", price: "5",
			want: true, wantCash: "50", wantPos: "0",
		},
		{
			name:       "2. Partial position sold with fee",
			commission: "0.1",
			position:   "10", qty: "5", price: "10",
			want: true, wantCash: "45", wantPos: "5",
		},
		{
			name:       "3. Oversell is a no-op",
			commission: "0",
			position:   "5", qty: "10", price: "5",
			want: false, wantCash: "0", wantPos: "5",
		},
		{
			name:       "4. Empty position",
			commission: "0",
			position:   "0", qty: "1", price: "5",
			want: false, wantCash: "0", wantPos: "0",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := New(decimal.Zero, d(tt.commission))
			b.positions["BTCUSDT"] = d(tt.position)

			if got := b.ApplySell("BTCUSDT", d(tt.qty), d(tt.price)); got != tt.want {
				t.Errorf("ApplySell() = %v, want %v", got, tt.want)
			}
			if !b.Cash().Equal(d(tt.wantCash)) {
				t.Errorf("cash = %v, want %v", b.Cash(), tt.wantCash)
			}
			if !b.Position("BTCUSDT").Equal(d(tt.wantPos)) {
				t.Errorf("position = %v, want %v", b.Position("BTCUSDT"), tt.wantPos)
			}
		})
	}
}

func TestPortfolioValue(t *testing.T) {
	b := New(d("100"), decimal.Zero)
	b.positions["BTCUSDT"] = d("2")
	b.positions["ETHUSDT"] = d("3")
	b.positions["XRPUSDT"] = d("-1") // short-like leftovers are ignored

	prices := map[string]decimal.Decimal{
		"BTCUSDT": d("10"),
		// ETHUSDT price missing: contributes zero
		"XRPUSDT": d("1000"),
	}

	if got, want := b.PortfolioValue(prices), d("120"); !got.Equal(want) {
		t.Errorf("PortfolioValue() = %v, want %v", got, want)
	}
}

func TestRejectedOperationsLeaveStateUnchanged(t *testing.T) {
	b := New(d("10"), d("0.5"))
	b.positions["BTCUSDT"] = d("1")

	before := b.Cash()
	if b.ApplyBuy("BTCUSDT", d("100"), d("100")) {
		t.Fatal("ApplyBuy() should have been rejected")
	}
	if b.ApplySell("BTCUSDT", d("2"), d("1")) {
		t.Fatal("ApplySell() should have been rejected")
	}
	if !b.Cash().Equal(before) {
		t.Errorf("cash changed on rejected ops: %v", b.Cash())
	}
	if !b.Position("BTCUSDT").Equal(d("1")) {
		t.Errorf("position changed on rejected ops: %v", b.Position("BTCUSDT"))
	}
}
