// Command engine runs the reducer core against a live or paper venue:
// config -> logger/metrics -> state -> event bus -> reducer -> executor
// -> WAL, with the API server exposing status and a live event feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uprootiny/arbitragefx-sub000/internal/api"
	"github.com/uprootiny/arbitragefx-sub000/internal/config"
	"github.com/uprootiny/arbitragefx-sub000/internal/engine"
	"github.com/uprootiny/arbitragefx-sub000/internal/events"
	"github.com/uprootiny/arbitragefx-sub000/internal/execution"
	"github.com/uprootiny/arbitragefx-sub000/internal/telemetry"
	"github.com/uprootiny/arbitragefx-sub000/internal/wal"
	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics := telemetry.NewMetrics()

	logger.Info("starting engine",
		zap.Strings("symbols", cfg.Symbols),
		zap.Bool("paper_trading", cfg.Execution.PaperTrading),
		zap.String("wal_path", cfg.WAL.Path),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if dir := filepath.Dir(cfg.WAL.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("create wal directory", zap.Error(err))
		}
	}
	walLog, err := wal.Open(cfg.WAL.Path)
	if err != nil {
		logger.Fatal("open wal", zap.Error(err))
	}
	defer walLog.Close()

	state := engine.New(cfg.Engine.StartingCash)
	engineCfg := cfg.ToEngineConfig()

	market := newStateMarketView(state)
	adapter := execution.NewPaperAdapter(market, cfg.ToCostModelConfig())

	// handlerFn is resolved below, after the executor exists; the bus is
	// built first so the risk manager's kill-switch callback and the
	// executor can both hold a reference to it.
	var handlerFn events.Handler
	bus := events.NewBus(logger, events.DefaultBusConfig(), func(e types.Event) error {
		return handlerFn(e)
	})

	risk := execution.NewRiskManager(cfg.ToRiskConfig(), func() {
		logger.Error("execution risk kill switch tripped")
		bus.Publish(types.Halt{Ts: time.Now().UnixMilli(), Reason: types.HaltManual})
	})

	executor := execution.NewExecutor(logger, adapter, walLog, bus, risk, execution.DefaultConfig())

	hub := api.NewHub(logger)
	go hub.Run()

	var statusMu sync.Mutex
	status := api.StatusSnapshot{}
	wasHalted := false
	lastTradeDay := state.Risk.TradeDay

	handlerFn = func(event types.Event) error {
		metrics.EventsProcessed.WithLabelValues(string(event.Family())).Inc()

		if fill, ok := event.(types.Fill); ok {
			hub.BroadcastFill(api.NewFillMessage(fill))
		}

		commands, _ := engine.Reduce(state, event, engineCfg)
		for _, cmd := range commands {
			metrics.CommandsEmitted.WithLabelValues(string(cmd.Kind())).Inc()
			executor.Submit(ctx, cmd)
		}

		if state.Risk.TradeDay != lastTradeDay {
			risk.ResetDaily()
			lastTradeDay = state.Risk.TradeDay
		}

		if state.Halted && !wasHalted {
			metrics.Halts.WithLabelValues(string(state.HaltReason)).Inc()
			hub.BroadcastHalt(string(state.HaltReason))
		}
		wasHalted = state.Halted

		statusMu.Lock()
		status = api.StatusSnapshot{
			Now:         state.Now,
			Halted:      state.Halted,
			HaltReason:  string(state.HaltReason),
			Equity:      state.Portfolio.Equity,
			Cash:        state.Portfolio.Cash,
			TradesToday: state.Risk.TradesToday,
		}
		statusMu.Unlock()

		return nil
	}

	apiCfg := api.Config{
		Host: cfg.API.Host, Port: cfg.API.Port, AllowedOrigins: cfg.API.AllowedOrigins,
		ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second,
	}
	server := api.NewServer(logger, apiCfg, hub, metrics,
		func() api.StatusSnapshot {
			statusMu.Lock()
			defer statusMu.Unlock()
			return status
		},
		bus.Stats,
	)

	go bus.Run(ctx)

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.QueueDepth.Set(float64(bus.Stats().Queued))
			}
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	logger.Info("engine started", zap.String("api", fmt.Sprintf("http://%s:%d", cfg.API.Host, cfg.API.Port)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	cancel()
	bus.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", zap.Error(err))
	}

	logger.Info("engine stopped")
}

// stateMarketView adapts engine.State's per-symbol indicator block onto
// execution.MarketView, the narrow read surface the paper adapter needs.
// It is only ever read from the same goroutine that drives the event
// bus, since that goroutine is also the one invoking the executor
// synchronously for paper trading.
type stateMarketView struct {
	state *engine.State
}

func newStateMarketView(state *engine.State) *stateMarketView {
	return &stateMarketView{state: state}
}

func (m *stateMarketView) LastPrice(symbol string) (float64, bool) {
	ind, ok := m.state.Symbols[symbol]
	if !ok || ind.LastPrice == 0 {
		return 0, false
	}
	return ind.LastPrice, true
}

func (m *stateMarketView) TopOfBook(symbol string) (bid, ask float64, ok bool) {
	ind, found := m.state.Symbols[symbol]
	if !found || ind.LastPrice == 0 {
		return 0, 0, false
	}
	half := ind.Spread / 2
	if half == 0 {
		half = ind.LastPrice * 0.0005
	}
	return ind.LastPrice - half, ind.LastPrice + half, true
}

func (m *stateMarketView) Volatility(symbol string) float64 {
	ind, ok := m.state.Symbols[symbol]
	if !ok {
		return 0
	}
	return ind.Volatility
}

var _ execution.MarketView = (*stateMarketView)(nil)
