package market

import (
	"testing"

	"github.com/shopspring/decimal"
)

func sampleBook() *DepthBook {
	d := NewDepthBook("NIFTY")
	d.SetLevels(
		[]PriceLevel{
			{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(10)},
			{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(50)},
		},
		[]PriceLevel{
			{Price: decimal.NewFromInt(102), Size: decimal.NewFromInt(10)},
			{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(5)},
		},
	)
	return d
}

func TestSetLevelsSortsBestFirst(t *testing.T) {
	d := sampleBook()
	if !d.BestBid().Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("BestBid = %s, want 100", d.BestBid().Price)
	}
	if !d.BestAsk().Price.Equal(decimal.NewFromInt(101)) {
		t.Errorf("BestAsk = %s, want 101", d.BestAsk().Price)
	}
}

func TestSpreadComputesAskMinusBid(t *testing.T) {
	d := sampleBook()
	if got, want := d.Spread(), decimal.NewFromInt(1); !got.Equal(want) {
		t.Errorf("Spread = %s, want %s", got, want)
	}
}

func TestSpreadIsZeroWhenOneSideEmpty(t *testing.T) {
	d := NewDepthBook("NIFTY")
	d.SetLevels([]PriceLevel{{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}}, nil)
	if !d.Spread().IsZero() {
		t.Errorf("expected zero spread with an empty ask side, got %s", d.Spread())
	}
}

func TestImbalanceFavorsHeavierSide(t *testing.T) {
	d := sampleBook()
	// bid total 60, ask total 15: (60-15)/(75) = 0.6
	want := decimal.NewFromInt(45).Div(decimal.NewFromInt(75))
	if got := d.Imbalance(); !got.Equal(want) {
		t.Errorf("Imbalance = %s, want %s", got, want)
	}
}

func TestSetLevelsTruncatesToMaxDepthLevels(t *testing.T) {
	d := NewDepthBook("NIFTY")
	var bids []PriceLevel
	for i := 0; i < 10; i++ {
		bids = append(bids, PriceLevel{Price: decimal.NewFromInt(int64(100 - i)), Size: decimal.NewFromInt(1)})
	}
	d.SetLevels(bids, nil)
	if got := len(d.bids); got != MaxDepthLevels {
		t.Errorf("len(bids) = %d, want %d", got, MaxDepthLevels)
	}
}

func TestVolumeWeightedPriceWalksMultipleLevels(t *testing.T) {
	d := sampleBook()
	// Buying 15 units: 5 @101 + 10 @102 -> (5*101+10*102)/15
	price, err := d.VolumeWeightedPrice(SideBuy, decimal.NewFromInt(15))
	if err != nil {
		t.Fatalf("VolumeWeightedPrice: %v", err)
	}
	want := decimal.NewFromInt(5).Mul(decimal.NewFromInt(101)).Add(decimal.NewFromInt(10).Mul(decimal.NewFromInt(102))).Div(decimal.NewFromInt(15))
	if !price.Equal(want) {
		t.Errorf("price = %s, want %s", price, want)
	}
}

func TestVolumeWeightedPriceErrorsOnInsufficientLiquidity(t *testing.T) {
	d := sampleBook()
	_, err := d.VolumeWeightedPrice(SideBuy, decimal.NewFromInt(1000))
	if err == nil {
		t.Fatal("expected an error for a size exceeding total ask liquidity")
	}
}

func TestLargeOrdersFindsOutsizedLevels(t *testing.T) {
	d := NewDepthBook("NIFTY")
	d.SetLevels([]PriceLevel{
		{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(10)},
		{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(10)},
		{Price: decimal.NewFromInt(98), Size: decimal.NewFromInt(100)},
	}, nil)

	large := d.LargeOrders(decimal.NewFromFloat(2.0))
	if len(large) != 1 || !large[0].Size.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected exactly the 100-size level flagged as large, got %+v", large)
	}
}
