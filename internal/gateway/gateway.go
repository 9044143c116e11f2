// Package gateway assembles the HTTP service from configuration: audit
// log backend, signing key, rule table, engine and router.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/davidahmann/parliament/internal/api"
	"github.com/davidahmann/parliament/internal/auth"
	"github.com/davidahmann/parliament/internal/config"
	"github.com/davidahmann/parliament/internal/crypto"
	"github.com/davidahmann/parliament/internal/ledger"
	"github.com/davidahmann/parliament/internal/ledger/badgerstore"
	"github.com/davidahmann/parliament/internal/ledger/pgstore"
	"github.com/davidahmann/parliament/internal/ledger/sqlstore"
	"github.com/davidahmann/parliament/internal/minds"
	"github.com/davidahmann/parliament/internal/parliament"
	"github.com/davidahmann/parliament/internal/signals"
)

const shutdownTimeout = 10 * time.Second

// NewLogger builds a production zap logger at level; verbose forces debug.
func NewLogger(level string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

type Options struct {
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Auth     auth.Authenticator
}

type Gateway struct {
	Server  *http.Server
	Service *api.DecisionService
	Log     ledger.Log

	logger  *zap.Logger
	closers []func() error
}

func Build(ctx context.Context, cfg config.Config, opts Options) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	authn := opts.Auth
	if authn == nil {
		authn = auth.NewAuthenticatorFromEnv()
	}

	g := &Gateway{logger: logger}
	log, closeLog, err := OpenLog(ctx, cfg.DB, logger)
	if err != nil {
		return nil, err
	}
	g.Log = log
	if closeLog != nil {
		g.closers = append(g.closers, closeLog)
	}

	signer, err := LoadSigner(cfg.SigningKey, logger)
	if err != nil {
		_ = g.Close()
		return nil, err
	}
	classifier, err := LoadClassifier(cfg.RulesPath)
	if err != nil {
		_ = g.Close()
		return nil, err
	}
	idem, err := api.NewIdemCache(cfg.Idempotency.CacheSize)
	if err != nil {
		_ = g.Close()
		return nil, err
	}

	engine := parliament.NewEngine(minds.DefaultPanel(), parliament.Options{
		Parallel: cfg.Engine.Parallel,
		Logger:   logger.Named("engine"),
		Metrics:  parliament.NewMetrics(reg),
	})
	service, err := api.NewDecisionService(api.ServiceOptions{
		Engine:     engine,
		Classifier: classifier,
		Log:        log,
		Signer:     signer,
		Idem:       idem,
		Logger:     logger.Named("decisions"),
	})
	if err != nil {
		_ = g.Close()
		return nil, err
	}
	g.Service = service

	g.Server = &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.NewRouter(&api.Handler{
			Auth:     authn,
			Service:  service,
			Logger:   logger.Named("http"),
			Gatherer: reg,
			BaseURL:  cfg.BaseURL,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("gateway configured",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("db_driver", string(driverOf(cfg.DB))),
		zap.String("key_id", signer.KeyID()),
		zap.String("rules_version", classifier.RulesVersion()),
		zap.String("rules_hash", classifier.RulesHash()),
		zap.Bool("parallel", cfg.Engine.Parallel),
	)
	return g, nil
}

// Serve runs the server until ctx is cancelled, then shuts down gracefully.
func (g *Gateway) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- g.Server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		g.logger.Info("shutting down")
		return g.Server.Shutdown(shutdownCtx)
	}
}

func (g *Gateway) Close() error {
	var errs []error
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	g.closers = nil
	return errors.Join(errs...)
}

func driverOf(db config.DBConfig) ledger.DBDriver {
	if db.Driver == "" {
		return ledger.DBMemory
	}
	return ledger.DBDriver(db.Driver)
}

// OpenLog opens the configured audit log backend, applying migrations for
// the SQL drivers. The returned closer may be nil.
func OpenLog(ctx context.Context, db config.DBConfig, logger *zap.Logger) (ledger.Log, func() error, error) {
	switch driver := driverOf(db); driver {
	case ledger.DBMemory:
		return ledger.NewInMemoryLog(), nil, nil
	case ledger.DBSQLite:
		s, err := sqlstore.OpenSQLite(db.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := ledger.Migrate(ctx, s.DB(), driver); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return s, s.Close, nil
	case ledger.DBPostgres:
		s, err := pgstore.OpenPostgres(db.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := ledger.Migrate(ctx, s.DB(), driver); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return s, s.Close, nil
	case ledger.DBBadger:
		s, err := badgerstore.Open(badgerstore.Config{Path: db.DSN, SyncWrites: true, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported db driver: %s", driver)
	}
}

// LoadSigner reads the configured Ed25519 key, or generates an ephemeral
// one when no path is set. Records signed by an ephemeral key cannot be
// verified after restart.
func LoadSigner(cfg config.SigningKeyConfig, logger *zap.Logger) (*crypto.Ed25519Signer, error) {
	if cfg.PrivateKeyPath == "" {
		priv, _, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		logger.Warn("no signing key configured; using an ephemeral key", zap.String("key_id", cfg.KeyID))
		return crypto.NewEd25519Signer(cfg.KeyID, priv), nil
	}
	priv, _, err := crypto.LoadEd25519PrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	return crypto.NewEd25519Signer(cfg.KeyID, priv), nil
}

// LoadClassifier loads a rule table from path, or the embedded table when
// path is empty.
func LoadClassifier(path string) (*signals.Classifier, error) {
	if path == "" {
		return signals.DefaultClassifier(), nil
	}
	loaded, err := signals.LoadRules(path)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return signals.NewClassifier(loaded)
}
