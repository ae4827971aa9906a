package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestInstrumentKeyNormalizesSeparatorsAndCase(t *testing.T) {
	i := Instrument{Symbol: "nifty-50_index", Exchange: "NSE", Kind: KindIndex}
	if got, want := i.Key(), "NIFTY50INDEX"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestPutTickThenLatestPriceAndAge(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(fixedClock{t: now})

	s.PutTick(Tick{Instrument: "NIFTY", Timestamp: now.Add(-5 * time.Second), LastPrice: decimal.NewFromInt(100)})

	price, ok := s.LatestPrice("NIFTY")
	if !ok || !price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("LatestPrice = %s, %v", price, ok)
	}
	if age := s.Age("NIFTY"); age != 5*time.Second {
		t.Errorf("Age() = %v, want 5s", age)
	}
}

func TestAgeFailsClosedWithNoTicks(t *testing.T) {
	s := NewStore(fixedClock{t: time.Now()})
	if age := s.Age("UNKNOWN"); age < 365*24*time.Hour {
		t.Errorf("expected a very large fail-closed age, got %v", age)
	}
	if _, ok := s.LatestPrice("UNKNOWN"); ok {
		t.Error("expected LatestPrice ok=false for an instrument with no ticks")
	}
}

func TestPutDepthTracksItsOwnTimestampSeparatelyFromTickAge(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(fixedClock{t: now})

	s.PutTick(Tick{Instrument: "NIFTY", Timestamp: now.Add(-1 * time.Second), LastPrice: decimal.NewFromInt(100)})
	s.PutDepth("NIFTY", []PriceLevel{{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(5)}}, nil, now.Add(-30*time.Second))

	if age := s.DepthAge("NIFTY"); age != 30*time.Second {
		t.Errorf("DepthAge() = %v, want 30s", age)
	}
	if age := s.Age("NIFTY"); age != time.Second {
		t.Errorf("Age() = %v, want 1s (depth update should not affect tick age)", age)
	}
}

func TestDepthAgeFailsClosedWithNoDepthEverPut(t *testing.T) {
	s := NewStore(fixedClock{t: time.Now()})
	if age := s.DepthAge("UNKNOWN"); age < 365*24*time.Hour {
		t.Errorf("expected a very large fail-closed depth age, got %v", age)
	}
}

func TestRecentBarsReturnsOldestFirstBoundedByLimit(t *testing.T) {
	s := NewStore(WallClock{})
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.PutBar(OHLCBar{
			Instrument: "NIFTY", Timeframe: TF1m,
			StartAt: base.Add(time.Duration(i) * time.Minute),
			Open:    decimal.NewFromInt(int64(100 + i)), Closed: true,
		})
	}

	bars := s.RecentBars("NIFTY", TF1m, 3)
	if len(bars) != 3 {
		t.Fatalf("len(bars) = %d, want 3", len(bars))
	}
	// last 3 of 5 bars: indices 2,3,4 -> opens 102,103,104
	if !bars[0].Open.Equal(decimal.NewFromInt(102)) || !bars[2].Open.Equal(decimal.NewFromInt(104)) {
		t.Errorf("unexpected bar ordering: %+v", bars)
	}
}

func TestPutBarUpdatesStillOpenBarInPlace(t *testing.T) {
	s := NewStore(WallClock{})
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	s.PutBar(OHLCBar{Instrument: "NIFTY", Timeframe: TF1m, StartAt: start, Open: decimal.NewFromInt(100), Closed: false})
	s.PutBar(OHLCBar{Instrument: "NIFTY", Timeframe: TF1m, StartAt: start, Open: decimal.NewFromInt(100), Close: decimal.NewFromInt(105), Closed: false})

	bars := s.RecentBars("NIFTY", TF1m, 0)
	if len(bars) != 1 {
		t.Fatalf("expected the open bar to be updated in place, got %d bars", len(bars))
	}
	if !bars[0].Close.Equal(decimal.NewFromInt(105)) {
		t.Errorf("Close = %s, want 105", bars[0].Close)
	}
}

func TestOptionsChainRespectsTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(fixedClock{t: now})
	s.PutOptionsChain(OptionsChainSnapshot{Instrument: "NIFTY", At: now.Add(-30 * time.Second)})

	if _, ok := s.OptionsChain("NIFTY", 60*time.Second); !ok {
		t.Error("expected chain within TTL to be returned")
	}
	if _, ok := s.OptionsChain("NIFTY", 10*time.Second); ok {
		t.Error("expected chain older than TTL to be rejected")
	}
}
