// traderd is the trading core daemon. It runs the Ingestion Pipeline,
// Agent Graph, Decision Scheduler, Position Monitor, and Circuit Breaker
// against one instrument, in paper-trading mode, and exposes the core's
// HTTP API and Prometheus metrics — adapted from the teacher's
// cmd/agentd daemon shape (flag parsing, signal-driven graceful
// shutdown, a single startHTTP mux).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/agents"
	"github.com/quantaflow/tradecore/pkg/broker"
	"github.com/quantaflow/tradecore/pkg/config"
	"github.com/quantaflow/tradecore/pkg/httpapi"
	"github.com/quantaflow/tradecore/pkg/ingestion"
	"github.com/quantaflow/tradecore/pkg/llmrouter"
	"github.com/quantaflow/tradecore/pkg/market"
	"github.com/quantaflow/tradecore/pkg/metrics"
	"github.com/quantaflow/tradecore/pkg/monitor"
	"github.com/quantaflow/tradecore/pkg/persistence"
	"github.com/quantaflow/tradecore/pkg/provider"
	"github.com/quantaflow/tradecore/pkg/risk"
	"github.com/quantaflow/tradecore/pkg/scheduler"
	"github.com/quantaflow/tradecore/pkg/snapshot"
	"github.com/quantaflow/tradecore/pkg/streaming"
)

var (
	symbol       = flag.String("symbol", "NIFTY", "Primary instrument symbol")
	exchange     = flag.String("exchange", "NSE", "Exchange code")
	paperMode    = flag.Bool("paper", true, "Run the Paper Broker instead of live execution")
	httpAddr     = flag.String("http", ":8080", "HTTP server address")
	initialBal   = flag.Float64("balance", 100000, "Initial paper trading capital")
	strategicMin = flag.Int("strategic-minutes", 12, "Strategic cycle period in minutes")
	tacticalMin  = flag.Int("tactical-minutes", 3, "Tactical cycle period in minutes")
	verbose      = flag.Bool("verbose", false, "Verbose cycle logging")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("Starting trading core daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d, err := build()
	if err != nil {
		log.Fatalf("failed to initialize daemon: %v", err)
	}

	go d.hub.Run()
	go d.ingest.Run(ctx)
	go d.router.RunHealthChecks(ctx)
	go d.monitor.Run(ctx)
	go func() {
		if err := d.http.ListenAndServe(); err != nil {
			log.Printf("http server stopped: %v", err)
		}
	}()

	d.sched.OnCycleComplete(func(outcome scheduler.CycleOutcome) {
		if outcome.Aborted != scheduler.AbortNone {
			if *verbose {
				log.Printf("[cycle] %s aborted: %s", outcome.Instrument, outcome.Aborted)
			}
			return
		}
		d.hub.PublishCycleResult(outcome.Result)
		if outcome.Result.FinalSignal != agents.ActionHold {
			d.hub.PublishSignal(outcome.Result)
		}
		if *verbose || outcome.Result.FinalSignal != agents.ActionHold {
			log.Printf("[cycle] %s cycle=%d signal=%s bull=%.2f bear=%.2f (%s)",
				outcome.Instrument, outcome.Result.CycleID, outcome.Result.FinalSignal,
				outcome.Result.BullishScore, outcome.Result.BearishScore, outcome.Duration)
		}
	})

	go d.sched.Run(ctx)

	log.Printf("trading core running (instrument=%s paper=%v http=%s)", d.instrumentKey, *paperMode, *httpAddr)
	log.Println("Press Ctrl+C to stop")

	<-sigCh
	log.Println("shutting down...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), d.cfg.Scheduler.ShutdownGrace)
	defer shutdownCancel()
	if err := d.http.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}

	log.Printf("final capital: %s", d.brk.Capital().String())
	log.Println("goodbye")
}

type daemon struct {
	cfg           *config.Config
	instrumentKey string

	store   *market.Store
	ingest  *ingestion.Pipeline
	router  *llmrouter.Router
	graph   *agents.Graph
	brk     *broker.Broker
	cb      *risk.CircuitBreaker
	monitor *monitor.Monitor
	snaps   *snapshot.Builder
	sched   *scheduler.Scheduler
	hub     *streaming.Hub
	http    *httpapi.Server
	metrics *metrics.Metrics

	lastResult agents.CycleResult
}

func build() (*daemon, error) {
	cfg := config.Default()
	cfg.Instruments = []config.InstrumentConfig{{
		Symbol:       *symbol,
		Exchange:     *exchange,
		Kind:         config.KindIndex,
		MaxDataAge:   120 * time.Second,
		StrikeStep:   100,
		StrikeWindow: 5,
	}}
	cfg.Trading.PaperMode = *paperMode
	cfg.Scheduler.StrategicCyclePeriod = time.Duration(*strategicMin) * time.Minute
	cfg.Scheduler.TacticalCyclePeriod = time.Duration(*tacticalMin) * time.Minute
	cfg.HTTP.Addr = *httpAddr

	instrument := market.Instrument{Symbol: *symbol, Exchange: *exchange, Kind: market.KindIndex}
	key := instrument.Key()

	m := metrics.New(cfg.Metrics.Namespace)
	store := market.NewStore(market.WallClock{})
	persist := persistence.NewMemoryStore()

	prov := provider.Factory(cfg, nil, nil)
	pipeline := ingestion.New(key, prov, store, persist, []market.Timeframe{market.TF1m, market.TF5m, market.TF15m})

	router := llmrouter.New(llmProvidersFromEnv(), cfg.LLM.SelectionStrategy, m)
	graph := agents.New(router, cfg, m)

	brk := broker.New(cfg.Trading, decimal.NewFromFloat(*initialBal), m)
	brk.AllowSymbol(key)

	cb := risk.New(cfg.Risk, cfg.Trading.MaxLeverage, m)

	hub := streaming.NewHub()

	mon := monitor.New(store, brk, func() bool { return cb.Status().ShouldHalt })
	snaps := snapshot.New(store, brk, m)

	sched := scheduler.New(cfg, store, graph, brk, cb, mon, snaps, persist, m)

	d := &daemon{
		cfg:           cfg,
		instrumentKey: key,
		store:         store,
		ingest:        pipeline,
		router:        router,
		graph:         graph,
		brk:           brk,
		cb:            cb,
		monitor:       mon,
		snaps:         snaps,
		sched:         sched,
		hub:           hub,
		metrics:       m,
	}

	sched.OnCycleComplete(func(outcome scheduler.CycleOutcome) {
		if outcome.Aborted == scheduler.AbortNone {
			d.lastResult = outcome.Result
		}
	})

	d.http = httpapi.New(cfg.HTTP.Addr, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, httpapi.Sources{
		Store:      store,
		Instrument: key,
		Broker:     brk,
		CB:         cb,
		Snapshots:  snaps,
		Hub:        hub,
		Metrics:    m,
		LatestCycle: func() (agents.CycleResult, bool) {
			if d.lastResult.CycleID == 0 {
				return agents.CycleResult{}, false
			}
			return d.lastResult, true
		},
	})

	return d, nil
}

// llmProvidersFromEnv builds the Router's provider list from well-known
// API key environment variables, matching the teacher's
// tools.NewModelRouter() convention of reading one env var per vendor.
func llmProvidersFromEnv() []llmrouter.Provider {
	var providers []llmrouter.Provider

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers = append(providers, llmrouter.Provider{
			Name: "anthropic", Transport: "anthropic", Model: "claude-3-5-sonnet-20241022",
			BaseURL: "https://api.anthropic.com", APIKey: key, Priority: 0,
			MaxTokens: 1024, Temperature: 0.2, Timeout: 60 * time.Second,
		})
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers = append(providers, llmrouter.Provider{
			Name: "openai", Transport: "openai", Model: "gpt-4o-mini",
			BaseURL: "https://api.openai.com/v1", APIKey: key, Priority: 1,
			MaxTokens: 1024, Temperature: 0.2, Timeout: 60 * time.Second,
		})
	}
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		providers = append(providers, llmrouter.Provider{
			Name: "deepseek", Transport: "openai", Model: "deepseek-chat",
			BaseURL: "https://api.deepseek.com/v1", APIKey: key, Priority: 2,
			MaxTokens: 1024, Temperature: 0.2, Timeout: 60 * time.Second,
		})
	}

	ollamaURL := os.Getenv("OLLAMA_URL")
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	providers = append(providers, llmrouter.Provider{
		Name: "ollama", Transport: "ollama", Model: "qwen3:8b",
		BaseURL: ollamaURL, Priority: 9,
		MaxTokens: 1024, Temperature: 0.2, Timeout: 60 * time.Second,
	})

	return providers
}
