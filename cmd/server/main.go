package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/logging"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/router"
	"github.com/iliyamo/auth-service/internal/service"
	"github.com/iliyamo/auth-service/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "auth-service:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Env)
	slog.SetDefault(logger)
	if cfg.JWT.InsecureRefreshSecret {
		logger.Warn("REFRESH_TOKEN_SECRET not set; using the insecure development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logger.Warn("redis unavailable; rate limiting and JWKS caching disabled")
	} else {
		defer rdb.Close()
	}

	keys := utils.PEMKeySource{PEM: cfg.JWT.PrivateKeyPEM, Path: cfg.JWT.PrivateKeyPath}
	privateKey, err := keys.PrivateKey()
	if err != nil {
		// access tokens fail with 500 until a key is loaded via SIGHUP
		logger.Error("signing key not loaded", "error", err)
	}
	signer := utils.NewSigner(utils.SignerConfig{
		Issuer:        cfg.JWT.Issuer,
		KeyID:         cfg.JWT.KeyID,
		PrivateKey:    privateKey,
		RefreshSecret: []byte(cfg.JWT.RefreshSecret),
	})

	users := repository.NewUserRepo(db)
	tenants := repository.NewTenantRepo(db)
	tokens := repository.NewTokenRepo(db)
	hasher := utils.NewBcryptHasher(cfg.BcryptCost)
	tokenSvc := service.NewTokenService(signer, tokens)

	var events service.Publisher = service.NoopPublisher{}
	if cfg.Events.Enabled {
		events = service.NewAMQPPublisher(cfg.Events.URL)
	}

	authH := &handler.AuthHandler{
		Cookies:  cfg.Cookie,
		Users:    users,
		Hasher:   hasher,
		Tokens:   tokenSvc,
		Verifier: signer,
		Events:   events,
		Logger:   logger,
	}

	cacheCfg := config.LoadCacheConfig()
	e := newEcho(logger)
	authn := middleware.JWTAuth(signer)
	router.RegisterRoutes(e, handler.Health(db))
	router.RegisterAuth(e, authH, authn, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger))
	router.RegisterAdmin(e, handler.NewUserHandler(users, hasher), handler.NewTenantHandler(tenants), authn)
	router.RegisterJWKS(e, handler.JWKS(signer), middleware.NewRedisCache(cacheCfg, rdb, logger))

	sweeper := &service.LedgerSweeper{Ledger: tokens, Interval: cfg.LedgerSweepInterval, Logger: logger}
	go sweeper.Run(ctx)

	if cfg.Events.ConsumerEnabled {
		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.Events.URL, cfg.Events.AuditLogDir, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	go reloadKeysOnHUP(ctx, signer, keys, cacheCfg, rdb, logger)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newEcho(logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(logger)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error.Error())
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))
	return e
}

// reloadKeysOnHUP swaps in the key from keys on every SIGHUP and drops the
// cached JWKS document so verifiers see the new key.
func reloadKeysOnHUP(ctx context.Context, signer *utils.Signer, keys utils.KeySource, cacheCfg config.CacheConfig, rdb *redis.Client, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := signer.Rotate(keys); err != nil {
				logger.Error("key reload failed; keeping current key", "error", err)
				continue
			}
			if err := middleware.Purge(ctx, cacheCfg, rdb); err != nil {
				logger.Warn("jwks cache purge failed", "error", err)
			}
			logger.Info("signing key reloaded")
		}
	}
}
