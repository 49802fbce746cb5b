package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"commander/internal/api"
	"commander/internal/broker"
	"commander/internal/config"
	"commander/internal/domain"
	"commander/internal/engine"
	"commander/internal/notify"
	"commander/internal/session"
	"commander/internal/sizing"
	"commander/internal/store"
	"commander/internal/strategy"
	"commander/internal/strategy/builtins"
)

// app holds the wired components of a running server.
type app struct {
	router  *broker.Router
	journal *store.SQLiteJournal
	server  *api.Server
	runner  *strategy.Runner
}

func (a *app) close() {
	if a.journal != nil {
		a.journal.Close()
	}
}

// build wires every component from cfg. Without Alpaca credentials the paper
// account is an in-memory simulator quoting trading.simulator_prices. Live
// trading needs its own key pair.
func build(cfg *config.Config, log *slog.Logger) (*app, error) {
	if log == nil {
		log = slog.Default()
	}
	settings, err := config.OpenSettings(cfg.Paths.Settings, config.DefaultSettings(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening settings: %w", err)
	}
	current := settings.Get()

	paper, live, err := newBrokers(cfg, log)
	if err != nil {
		return nil, err
	}
	mode := domain.Mode(current.Mode)
	if mode == domain.ModeLive && live == nil {
		log.Warn("live trading requested but no live broker is configured, using paper")
		mode = domain.ModePaper
	}
	router := broker.NewRouter(paper, live, mode)

	journal, err := store.NewSQLiteJournal(cfg.Storage.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	archive := store.NewParquetArchive(cfg.Storage.ArchiveDir)
	audit := engine.NewAudit(journal, archive, log)

	maxNotional := decimal.Zero
	if cfg.Trading.MaxOrderNotional != "" {
		if maxNotional, err = decimal.NewFromString(cfg.Trading.MaxOrderNotional); err != nil {
			journal.Close()
			return nil, fmt.Errorf("trading.max_order_notional: %w", err)
		}
	}
	policy := sizingPolicy(current)
	eng := engine.NewEngine(router, policy, engine.NewRiskManager(policy, maxNotional), log)

	hub := notify.NewHub(20)
	defs := config.NewDefinitionStore(cfg.Paths.Baskets, cfg.Paths.Strategies)

	dispatcher := engine.NewDispatcher(engine.Deps{
		Engine:      eng,
		Modes:       router,
		Definitions: defs,
		Settings:    settings,
		Audit:       audit,
		Hub:         hub,
		Log:         log,
	})
	sessions := session.NewManager(dispatcher, log)

	runner := strategy.NewRunner(strategy.RunnerDeps{
		Engine:      eng,
		Settings:    settings,
		Definitions: defs,
		Allocators:  builtins.Registry(),
		Audit:       audit,
		Hub:         hub,
		Modes:       router,
		Log:         log,
	})

	return &app{
		router:  router,
		journal: journal,
		server:  api.NewServer(cfg.Server, sessions, hub, log),
		runner:  runner,
	}, nil
}

func newBrokers(cfg *config.Config, log *slog.Logger) (paper, live broker.Broker, err error) {
	a := cfg.Alpaca
	if a.APIKey == "" || a.APISecret == "" {
		cash, err := decimal.NewFromString(cfg.Trading.SimulatorCash)
		if err != nil {
			return nil, nil, fmt.Errorf("trading.simulator_cash: %w", err)
		}
		sim := broker.NewSimulatorBroker(cash)
		for sym, px := range cfg.Trading.SimulatorPrices {
			price, err := decimal.NewFromString(px)
			if err != nil {
				return nil, nil, fmt.Errorf("trading.simulator_prices.%s: %w", sym, err)
			}
			sim.SetPrice(sym, price)
		}
		log.Warn("no Alpaca credentials, paper trading uses the in-memory simulator",
			"cash", cash.String(), "quoted_symbols", len(cfg.Trading.SimulatorPrices))
		return sim, nil, nil
	}

	opts := broker.AlpacaOptions{
		APIKey:     a.APIKey,
		APISecret:  a.APISecret,
		BaseURL:    a.PaperURL,
		DataURL:    a.DataURL,
		Feed:       a.Feed,
		Timeout:    time.Duration(a.TimeoutSeconds) * time.Second,
		RatePerMin: a.RateLimitPerMin,
	}
	paper = broker.NewAlpacaBroker(opts, log)

	key, secret := a.LiveCredentials()
	if key == "" {
		log.Info("no live Alpaca credentials, live trading is disabled")
		return paper, nil, nil
	}
	opts.APIKey, opts.APISecret = key, secret
	opts.BaseURL = a.LiveURL
	return paper, broker.NewAlpacaBroker(opts, log), nil
}

func sizingPolicy(s config.Settings) sizing.Policy {
	return sizing.NewPolicy(s.AllowFractional)
}

// checkDefinitions prints every basket and strategy definition with its
// validity.
func checkDefinitions(w io.Writer, cfg *config.Config) error {
	defs := config.NewDefinitionStore(cfg.Paths.Baskets, cfg.Paths.Strategies)

	baskets, broken := defs.Baskets()
	for _, b := range baskets {
		status := "ok"
		if err := b.Validate(); err != nil {
			status = err.Error()
		}
		fmt.Fprintf(w, "basket   %-16s %3d legs  weights %6s%%  %s\n", b.Name, len(b.Legs), b.WeightSum().String(), status)
	}
	for name, err := range broken {
		fmt.Fprintf(w, "basket   %-16s unreadable: %v\n", name, err)
	}

	reg := builtins.Registry()
	for _, name := range defs.Strategies() {
		st, err := defs.Strategy(name)
		if err != nil {
			fmt.Fprintf(w, "strategy %-16s unreadable: %v\n", name, err)
			continue
		}
		status := "ok"
		if _, ok := reg.Get(st.Sizing.Type); !ok {
			status = fmt.Sprintf("unknown position_sizing type %q", st.Sizing.Type)
		} else if !st.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(w, "strategy %-16s %3d symbols %s %s  %s\n", st.Name, len(st.Universe), st.Sizing.Type, st.Sizing.Value.String(), status)
	}
	return nil
}
