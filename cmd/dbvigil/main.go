package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/alerting"
	"github.com/dbvigil/dbvigil/pkg/circuitbreaker"
	"github.com/dbvigil/dbvigil/pkg/deadlock"
	"github.com/dbvigil/dbvigil/pkg/degradation"
	"github.com/dbvigil/dbvigil/pkg/errorhandler"
	"github.com/dbvigil/dbvigil/pkg/errors"
	"github.com/dbvigil/dbvigil/pkg/monitor"
	"github.com/dbvigil/dbvigil/pkg/perfmon"
	"github.com/dbvigil/dbvigil/pkg/pool"
	"github.com/dbvigil/dbvigil/pkg/sqlanalyze"
	"github.com/dbvigil/dbvigil/pkg/sysinfo"
	"github.com/dbvigil/dbvigil/server/httpapi"
	"github.com/dbvigil/dbvigil/store"
)

// Version information, injected at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// services holds every long-lived subsystem, wired once at startup.
type services struct {
	config      config.Config
	pools       *pool.Manager
	analyzer    *sqlanalyze.Analyzer
	detector    *deadlock.Detector
	breakers    *circuitbreaker.Registry
	degradation *degradation.Manager
	errors      *errorhandler.Handler
	dispatcher  *alerting.Dispatcher
	monitor     *monitor.Monitor
	perf        *perfmon.Monitor
	archive     *store.Store
	api         *httpapi.Server
	wg          sync.WaitGroup
}

func main() {
	errorHandler := errors.NewErrorHandler()
	cfg := config.NewDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.BoolVar(showVersion, "v", false, "Show version information and exit")
	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")
	apiAddr := flag.String("api-addr", "", "Override the HTTP API listen address")
	logLevel := flag.String("log-level", "", "Override the configured log level")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dbvigil version %s (commit: %s, built at: %s)\n", version, commit, date)
		os.Exit(0)
	}

	loadAndValidateConfig(*configPath, &cfg, errorHandler)
	if *apiAddr != "" {
		cfg.API.Addr = *apiAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DBVIGIL: Warning initializing logger: %v\n", err)
	}
	if logFile != nil {
		defer func(f *os.File) {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "DBVIGIL: Error closing log file %s: %v\n", f.Name(), err)
			}
		}(logFile)
	}

	logger.Infof("DBVIGIL starting (version %s, commit: %s, built: %s)", version, commit, date)
	logger.Infof("Logging format: %s, level: %s", cfg.Logging.Format, cfg.Logging.Level)
	logger.Infof("Watching %d database(s)", len(cfg.Databases))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Infof("Received signal: %s, shutting down...", sig)
		cancel()
	}()

	svc, initErr := initializeServices(ctx, cfg)
	if initErr != nil {
		errorHandler.FatalError("initialize services", initErr)
		os.Exit(errorHandler.WaitForExit())
	}
	defer svc.pools.Close()
	if svc.archive != nil {
		defer svc.archive.Close()
	}

	errChan := make(chan error, 1)
	if startErr := startLoops(ctx, svc, errChan); startErr != nil {
		errorHandler.FatalError("start service loops", startErr)
		os.Exit(errorHandler.WaitForExit())
	}

	select {
	case <-ctx.Done():
		errorHandler.Shutdown(ctx)
		logger.Info("Waiting for service loops to stop...")

		done := make(chan struct{})
		go func() {
			svc.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			logger.Info("All service loops stopped")
		case <-time.After(10 * time.Second):
			logger.Warn("Shutdown timeout reached after 10 seconds")
		}
	case err := <-errChan:
		errorHandler.FatalError("service operation", err)
		os.Exit(errorHandler.WaitForExit())
	}
}

// loadAndValidateConfig loads the TOML configuration and validates it.
func loadAndValidateConfig(configPath string, cfg *config.Config, errorHandler *errors.ErrorHandler) {
	if err := config.LoadConfigFromFile(configPath, cfg); err != nil {
		if os.IsNotExist(err) {
			if configPath == "config.toml" {
				logger.Infof("WARNING: default configuration file '%s' not found. Using application defaults.", configPath)
			} else {
				errorHandler.ConfigError(configPath, err)
				os.Exit(errorHandler.WaitForExit())
			}
		} else {
			errorHandler.ConfigError(configPath, err)
			os.Exit(errorHandler.WaitForExit())
		}
	} else {
		logger.Infof("loaded configuration from %s", configPath)
	}

	if err := cfg.Validate(); err != nil {
		errorHandler.ValidationError("configuration", err)
		os.Exit(errorHandler.WaitForExit())
	}
	if len(cfg.Databases) == 0 {
		errorHandler.ValidationError("databases",
			fmt.Errorf("no databases configured. Please configure at least one [[database]] section"))
		os.Exit(errorHandler.WaitForExit())
	}
}

// initializeServices constructs and wires every subsystem.
func initializeServices(ctx context.Context, cfg config.Config) (*services, error) {
	svc := &services{config: cfg}

	svc.pools = pool.NewManager(cfg.Pool, cfg.Pool.LogQueries)
	for i := range cfg.Databases {
		dbCfg := &cfg.Databases[i]
		if err := svc.pools.Register(ctx, dbCfg); err != nil {
			return nil, fmt.Errorf("register database '%s': %w", dbCfg.Alias, err)
		}
		logger.Infof("Registered database '%s'", dbCfg.Alias)
	}

	svc.analyzer = sqlanalyze.NewAnalyzer(cfg.SlowQuery.GetMaxEntries())
	svc.detector = deadlock.NewDetector(cfg.Deadlock.GetHistorySize())

	recoveryTimeout, err := cfg.CircuitBreaker.GetRecoveryTimeout()
	if err != nil {
		return nil, err
	}
	svc.breakers = circuitbreaker.NewRegistry(cfg.CircuitBreaker.GetFailureThreshold(), recoveryTimeout)

	svc.degradation = degradation.NewManager(len(cfg.Databases))
	svc.degradation.RegisterStrategy(degradation.NewReadPreferenceStrategy())
	svc.degradation.RegisterStrategy(degradation.NewRetrySuppressionStrategy(cfg.ErrorHandling.MaxRetryAttempts))
	svc.degradation.RegisterStrategy(degradation.NewNonEssentialWorkStrategy())

	svc.errors = errorhandler.NewHandler(cfg.ErrorHandling, svc.detector, svc.breakers, svc.degradation, svc.pools)
	svc.dispatcher = alerting.NewDispatcher(cfg.Alerting)

	if cfg.Store.Enabled {
		svc.archive, err = store.New(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open archive store: %w", err)
		}
		logger.Infof("Archive store opened at %s", cfg.Store.GetPath())
	} else {
		logger.Info("Archive store disabled")
	}

	svc.errors.SetNotifier(&errorNotifier{dispatcher: svc.dispatcher})
	if svc.archive != nil {
		archive := svc.archive
		svc.errors.RegisterCallback(func(dbErr *errorhandler.DatabaseError) {
			archiveError(archive, dbErr)
		})
	}

	slowThreshold, err := cfg.SlowQuery.GetThreshold()
	if err != nil {
		return nil, err
	}
	sampler := sysinfo.NewSampler("")
	collector := monitor.NewLiveCollector(svc.pools, svc.analyzer, sampler, slowThreshold)

	aliases := make([]string, 0, len(cfg.Databases))
	for _, dbCfg := range cfg.Databases {
		aliases = append(aliases, dbCfg.Alias)
	}
	sink := &alertSink{dispatcher: svc.dispatcher, archive: svc.archive}
	svc.monitor = monitor.NewMonitor(cfg.Monitor, cfg.Recovery, aliases, collector, sink, collector)
	svc.perf = perfmon.NewMonitor(cfg.Performance, svc.monitor, svc.analyzer, svc.dispatcher)

	if cfg.API.Start {
		svc.api = httpapi.New(cfg.API, httpapi.Deps{
			Pools:       svc.pools,
			Monitor:     svc.monitor,
			Alerts:      svc.dispatcher,
			Perf:        svc.perf,
			Analyzer:    svc.analyzer,
			Errors:      svc.errors,
			Breakers:    svc.breakers,
			Degradation: svc.degradation,
			Archive:     svc.archive,
		})
	}

	return svc, nil
}

// startLoops launches every background loop. They all stop on ctx
// cancellation and are joined through the shared WaitGroup.
func startLoops(ctx context.Context, svc *services, errChan chan<- error) error {
	if err := svc.pools.StartHealthChecks(ctx, &svc.wg); err != nil {
		return err
	}
	if err := svc.monitor.Start(ctx, &svc.wg); err != nil {
		return err
	}
	svc.perf.Start(ctx, &svc.wg)
	if svc.archive != nil {
		svc.archive.StartPruning(ctx, &svc.wg)
	}
	if svc.api != nil {
		svc.wg.Add(1)
		go func() {
			defer svc.wg.Done()
			svc.api.Start(ctx, errChan)
		}()
	}
	return nil
}
