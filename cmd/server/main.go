package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/svyatogor45/radar-arb/internal/api"
	"github.com/svyatogor45/radar-arb/internal/config"
	"github.com/svyatogor45/radar-arb/internal/coordinator"
	"github.com/svyatogor45/radar-arb/internal/depth"
	"github.com/svyatogor45/radar-arb/internal/dispatcher"
	"github.com/svyatogor45/radar-arb/internal/exchange"
	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/reporter"
	"github.com/svyatogor45/radar-arb/internal/repository"
	"github.com/svyatogor45/radar-arb/internal/service"
	"github.com/svyatogor45/radar-arb/internal/swapper"
	"github.com/svyatogor45/radar-arb/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	// One-shot diagnostic modes run and exit without the database, the
	// detection loop, or the HTTP server (spec §6 run modes).
	switch cfg.Detection.Mode {
	case "balance":
		runBalanceMode(cfg, logger)
		return
	case "health":
		runHealthMode(cfg, logger)
		return
	}

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Connected to database successfully")

	// Инициализация репозиториев
	blacklistRepo := repository.NewBlacklistRepository(db)

	// Инициализация сервисов
	blacklistService := service.NewBlacklistService(blacklistRepo)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		BlacklistService: blacklistService,
	}

	engine, err := buildEngine(cfg, logger, loadBlacklistPairs(blacklistService, logger))
	if err != nil {
		log.Fatalf("Failed to build detection/execution engine: %v", err)
	}
	engineCtx, stopEngine := context.WithCancel(context.Background())
	if engine != nil {
		go engine.coordinator.Run(engineCtx, engine.cadence)
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	stopEngine()
	if engine != nil {
		engine.close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// engine bundles the detection/execution side built by buildEngine: the
// Coordinator that drives the loop, the venue adapters it and the
// dispatcher hold open connections on, and the CSV sink flushed on
// shutdown.
type engine struct {
	coordinator *coordinator.Coordinator
	cadence     time.Duration
	sink        *reporter.CSVSink
	adapters    map[string]exchange.Adapter
}

func (e *engine) close() {
	for venue, a := range e.adapters {
		if err := a.Close(); err != nil {
			log.Printf("error closing %s adapter: %v", venue, err)
		}
	}
	if err := e.sink.Close(); err != nil {
		log.Printf("error closing report sink: %v", err)
	}
}

// buildEngine wires one exchange.Adapter per configured venue into the
// Graph Builder -> Cycle Detector -> Dispatcher -> Swapper pipeline
// (spec §2 data flow). A venue whose connector fails to construct (an
// unsupported name) is skipped with a warning rather than failing
// startup; missing credentials do not stop a connector from being built. Returns a nil engine (not an error) when no venue
// came up, so the API server still runs standalone.
func buildEngine(cfg *config.Config, logger *utils.Logger, blacklistSymbols []string) (*engine, error) {
	venues := exchange.ResolveExchanges(cfg.Detection.Exchanges, cfg.Detection.ExchangePreset)

	adapters := make(map[string]exchange.Adapter, len(venues))
	for _, name := range venues {
		a, err := exchange.NewExchange(name)
		if err != nil {
			logger.Warn("engine_exchange_unavailable", utils.Exchange(name), zap.Error(err))
			continue
		}
		adapters[name] = a
	}
	if len(adapters) == 0 {
		logger.Warn("engine_no_venues_configured")
		return nil, nil
	}

	swapAdapters := make(map[string]swapper.Adapter, len(adapters))
	mdVenues := make(map[string]coordinator.MarketData, len(adapters))
	bookSources := make(map[string]depth.BookSource, len(adapters))
	for venue, a := range adapters {
		swapAdapters[venue] = a
		mdVenues[venue] = a
		rest := restBookSource{a}
		if cfg.Detection.BFUseWS && a.Capabilities().PartialBookWS {
			bookSources[venue] = startWSBookSource(a, cfg.Detection, logger, rest)
		} else {
			bookSources[venue] = rest
		}
	}

	sw := &swapper.Swapper{
		Adapters: swapAdapters,
		Swap:     cfg.Swapper,
		Mirror:   cfg.Mirror,
		Sizing:   cfg.Sizing,
		Logger:   logger,
	}
	disp := dispatcher.New(swapAdapters, sw, cfg.Dispatcher, cfg.Swapper, logger)

	sink, err := reporter.NewCSVSink(getEnv("REPORT_DIR", "./reports"))
	if err != nil {
		return nil, fmt.Errorf("engine: build report sink: %w", err)
	}

	coord := coordinator.New(mdVenues, disp, sink, cfg.Detection, logger, blacklistSymbols)
	coord.BookSources = bookSources

	if cfg.Detection.SimulateCompound {
		wallets := make(map[string]coordinator.WalletReader, len(adapters))
		venueNames := make([]string, 0, len(adapters))
		for venue, a := range adapters {
			wallets[venue] = a
			venueNames = append(venueNames, venue)
		}
		seedCtx, cancelSeed := context.WithTimeout(context.Background(), 15*time.Second)
		coord.Sim = coordinator.NewSimulation(seedCtx, cfg.Detection, wallets, venueNames, logger)
		cancelSeed()
	}

	return &engine{
		coordinator: coord,
		cadence:     durationEnv("DETECT_INTERVAL_SEC", 5*time.Second),
		sink:        sink,
		adapters:    adapters,
	}, nil
}

// loadBlacklistPairs reads the operator-managed blacklist once at startup
// (spec §5: an immutable-per-iteration snapshot) and keeps only entries
// already in the detector's "BASE/QUOTE" pair format. Freeform entries
// ("BTCUSDT") carry no base/quote split to filter cycles on and remain
// note-taking only; both the skip count and an empty active snapshot are
// logged so the Coordinator's filter state is never silent.
func loadBlacklistPairs(svc *service.BlacklistService, logger *utils.Logger) []string {
	entries, err := svc.GetBlacklist()
	if err != nil {
		logger.Warn("blacklist_load_failed", zap.Error(err))
		return nil
	}
	pairs := make([]string, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if strings.Contains(e.Symbol, "/") {
			pairs = append(pairs, e.Symbol)
		} else {
			skipped++
		}
	}
	if skipped > 0 {
		logger.Info("blacklist_freeform_entries_skipped", zap.Int("count", skipped))
	}
	if len(pairs) == 0 {
		logger.Info("blacklist_snapshot_empty", utils.Component("coordinator"))
	} else {
		logger.Info("blacklist_snapshot_loaded", utils.Component("coordinator"), zap.Int("pairs", len(pairs)))
	}
	return pairs
}

// startWSBookSource loads a venue's markets once, subscribes its partial
// order book WS feed (spec §4.6 "depth20 at 100ms") for every symbol
// touching a configured anchor, and returns a depth.CachedSource that
// prefers the live cache and falls back to REST when the cache is empty
// or stale. Subscription runs in the background so a slow/unreachable
// venue never blocks startup; restFallback continues to serve revalidation
// requests until the WS feed catches up.
func startWSBookSource(a exchange.Adapter, cfg config.DetectionConfig, logger *utils.Logger, restFallback restBookSource) *depth.CachedSource {
	cache := depth.NewPartialBookCache()
	source := &depth.CachedSource{
		Cache:  cache,
		MaxAge: 2 * time.Second,
		REST:   restFallback.a.FetchOrderBook,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		markets, err := a.LoadMarkets(ctx)
		if err != nil {
			logger.Warn("ws_book_load_markets_failed", utils.Exchange(a.Name()), zap.Error(err))
			return
		}
		anchors := map[string]bool{cfg.Quote: true}
		for _, q := range cfg.BFAllowedQuotes {
			anchors[q] = true
		}
		symbols := make([]string, 0, len(markets))
		for sym, m := range markets {
			if !m.Active {
				continue
			}
			if anchors[string(m.Base)] || anchors[string(m.Quote)] {
				symbols = append(symbols, sym)
			}
		}
		if len(symbols) == 0 {
			return
		}
		if err := a.WatchOrderBook(context.Background(), symbols, func(symbol string, book models.OrderBook) {
			cache.Update(symbol, book, time.Now())
		}); err != nil {
			logger.Warn("ws_book_subscribe_failed", utils.Exchange(a.Name()), zap.Error(err))
		}
	}()
	return source
}

// restBookSource adapts an exchange.Adapter's REST order-book fetch to
// depth.BookSource, used as a venue's sole source when WS subscription is
// disabled or unsupported, and as the fallback behind startWSBookSource's
// depth.CachedSource otherwise.
type restBookSource struct {
	a exchange.Adapter
}

func (r restBookSource) OrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, bool, bool) {
	book, err := r.a.FetchOrderBook(ctx, symbol, limit)
	if err != nil {
		return models.OrderBook{}, false, false
	}
	return book, false, true
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func durationEnv(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return time.Duration(secs) * time.Second
}
