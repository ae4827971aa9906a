// Package httpapi implements the core-adjacent HTTP surface (§6.1): a
// net/http mux exposing read endpoints over the rest of the system plus
// Prometheus exposition and a WebSocket event feed, adapted from the
// teacher's cmd/agentd HTTP-registration style (a single startHTTP mux
// builder, one handler func per route).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/agents"
	"github.com/quantaflow/tradecore/pkg/broker"
	"github.com/quantaflow/tradecore/pkg/market"
	"github.com/quantaflow/tradecore/pkg/metrics"
	"github.com/quantaflow/tradecore/pkg/risk"
	"github.com/quantaflow/tradecore/pkg/snapshot"
	"github.com/quantaflow/tradecore/pkg/streaming"
)

// Sources bundles the read-only accessors the HTTP API is built over.
// Every field is optional except Store; nil fields degrade their
// endpoint's response rather than panicking.
type Sources struct {
	Store       *market.Store
	Instrument  string
	Broker      *broker.Broker
	CB          *risk.CircuitBreaker
	Snapshots   *snapshot.Builder
	Hub         *streaming.Hub
	Metrics     *metrics.Metrics
	LatestCycle func() (agents.CycleResult, bool)
}

// Server wraps a net/http.Server configured with every §6.1 route.
type Server struct {
	srv *http.Server
	src Sources
}

// New builds a Server bound to addr, wired over src.
func New(addr string, readTimeout, writeTimeout time.Duration, src Sources) *Server {
	mux := http.NewServeMux()
	s := &Server{src: src}

	mux.HandleFunc("/api/health", withNoCache(s.handleHealth))
	mux.HandleFunc("/api/market-data", withNoCache(s.handleMarketData))
	mux.HandleFunc("/api/latest-signal", withNoCache(s.handleLatestSignal))
	mux.HandleFunc("/api/latest-analysis", withNoCache(s.handleLatestAnalysis))
	mux.HandleFunc("/api/recent-trades", withNoCache(s.handleRecentTrades))
	mux.HandleFunc("/api/portfolio", withNoCache(s.handlePortfolio))
	mux.HandleFunc("/api/decision-snapshot", withNoCache(s.handleDecisionSnapshot))
	mux.HandleFunc("/metrics/trading", withNoCache(s.handleTradingMetrics))
	mux.HandleFunc("/metrics/risk", withNoCache(s.handleRiskMetrics))

	if src.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(src.Metrics.Registry(), promhttp.HandlerOpts{}))
	}
	if src.Hub != nil {
		mux.HandleFunc("/ws", src.Hub.ServeWS)
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func withNoCache(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Content-Type", "application/json")
		fn(w, r)
	}
}

// writeJSON round-trips body through JSON so nested structs (not just
// map[string]any) become plain generic values, then applies the §6.1
// alias transform recursively before encoding the response.
func writeJSON(w http.ResponseWriter, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	var generic any
	json.Unmarshal(raw, &generic)

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(withAliases(generic))
}

func writeJSONArray(w http.ResponseWriter, status int, body []map[string]any) {
	writeJSON(w, status, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	age := s.src.Store.Age(s.src.Instrument)
	depthAge := s.src.Store.DepthAge(s.src.Instrument)

	ltpFreshThreshold := 120 * time.Second
	depthFreshThreshold := 180 * time.Second
	ltpFresh := age < ltpFreshThreshold
	depthFresh := depthAge < depthFreshThreshold

	status := "ok"
	if !ltpFresh || !depthFresh {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"ltp_fresh":         ltpFresh,
		"ltp_age_seconds":   age.Seconds(),
		"depth_recent":      depthFresh,
		"depth_age_seconds": depthAge.Seconds(),
	})
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	price, ok := s.src.Store.LatestPrice(s.src.Instrument)
	bars := s.src.Store.RecentBars(s.src.Instrument, market.TF1m, 24*60)

	high, low, vwap := decimal.Zero, decimal.Zero, decimal.Zero
	if len(bars) > 0 {
		high, low = bars[0].High, bars[0].Low
		volWeighted, volSum := decimal.Zero, decimal.Zero
		for _, b := range bars {
			if b.High.GreaterThan(high) {
				high = b.High
			}
			if b.Low.LessThan(low) {
				low = b.Low
			}
			mid := b.High.Add(b.Low).Div(decimal.NewFromInt(2))
			volWeighted = volWeighted.Add(mid.Mul(b.Volume))
			volSum = volSum.Add(b.Volume)
		}
		if volSum.IsPositive() {
			vwap = volWeighted.Div(volSum)
		}
	}

	change24h := decimal.Zero
	if len(bars) > 0 && bars[0].Open.IsPositive() {
		change24h = price.Sub(bars[0].Open).Div(bars[0].Open)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"current_price": price,
		"market_open":   ok,
		"high_24h":      high,
		"low_24h":       low,
		"vwap":          vwap,
		"change_24h":    change24h,
		"timestamp":     time.Now(),
	})
}

func (s *Server) handleLatestSignal(w http.ResponseWriter, r *http.Request) {
	if s.src.LatestCycle == nil {
		writeJSON(w, http.StatusOK, map[string]any{"signal": agents.ActionHold})
		return
	}
	result, ok := s.src.LatestCycle()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"signal": agents.ActionHold})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signal":      result.FinalSignal,
		"entry_price": result.Entry,
		"stop_loss":   result.StopLoss,
		"take_profit": result.TakeProfit,
		"confidence":  result.BullishScore - result.BearishScore,
		"reasoning":   result.ExecutiveSummary,
	})
}

func (s *Server) handleLatestAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.src.LatestCycle == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "no_cycle_yet"})
		return
	}
	result, ok := s.src.LatestCycle()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "no_cycle_yet"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":            result.AgentDecisions,
		"timestamp":         result.At,
		"final_signal":      result.FinalSignal,
		"bullish_score":     result.BullishScore,
		"bearish_score":     result.BearishScore,
		"executive_summary": result.ExecutiveSummary,
	})
}

func (s *Server) handleRecentTrades(w http.ResponseWriter, r *http.Request) {
	if s.src.Broker == nil {
		writeJSONArray(w, http.StatusOK, nil)
		return
	}
	positions := s.src.Broker.OpenPositions()
	out := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		out = append(out, map[string]any{
			"trade_id":    p.TradeID,
			"instrument":  p.Instrument,
			"side":        p.Side,
			"quantity":    p.Quantity,
			"entry_price": p.EntryPrice,
			"status":      p.Status,
			"entry_at":    p.EntryAt,
			"pnl":         p.PnL,
		})
	}
	writeJSONArray(w, http.StatusOK, out)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if s.src.Broker == nil {
		writeJSON(w, http.StatusOK, map[string]any{"total_value": decimal.Zero, "positions": []any{}})
		return
	}
	positions := s.src.Broker.OpenPositions()
	totalValue := s.src.Broker.Capital()

	rows := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		current, _ := s.src.Store.LatestPrice(p.Instrument)
		rows = append(rows, map[string]any{
			"symbol":  p.Instrument,
			"size":    p.Quantity,
			"entry":   p.EntryPrice,
			"current": current,
			"pnl":     p.PnL,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_value": totalValue,
		"positions":   rows,
	})
}

func (s *Server) handleDecisionSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.src.Snapshots == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "no snapshot has been built yet"})
		return
	}
	snap := s.src.Snapshots.Build(s.src.Instrument)
	if snap.At.IsZero() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "no snapshot has been built yet"})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTradingMetrics(w http.ResponseWriter, r *http.Request) {
	if s.src.Broker == nil {
		writeJSON(w, http.StatusOK, map[string]any{"total_trades": 0, "win_rate": 0, "total_pnl": 0, "open_positions": 0})
		return
	}
	openCount := len(s.src.Broker.OpenPositions())
	writeJSON(w, http.StatusOK, map[string]any{
		"total_trades":   openCount,
		"win_rate":       0,
		"total_pnl":      s.src.Broker.RecentClosedPnL(1000),
		"open_positions": openCount,
	})
}

func (s *Server) handleRiskMetrics(w http.ResponseWriter, r *http.Request) {
	if s.src.CB == nil {
		writeJSON(w, http.StatusOK, map[string]any{"sharpe_ratio": 0, "max_drawdown": 0, "var_95": 0, "total_exposure": 0})
		return
	}
	state := s.src.CB.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"sharpe_ratio":   0,
		"max_drawdown":   0,
		"var_95":         0,
		"total_exposure": 0,
		"should_halt":    state.ShouldHalt,
		"checks":         state.Checks,
	})
}
