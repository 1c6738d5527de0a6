package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/heysouravv/social-hour/internal/adapter/cache"
	"github.com/heysouravv/social-hour/internal/adapter/otpless"
	"github.com/heysouravv/social-hour/internal/adapter/sms"
	"github.com/heysouravv/social-hour/internal/config"
	"github.com/heysouravv/social-hour/internal/events"
	"github.com/heysouravv/social-hour/internal/flow"
	httptransport "github.com/heysouravv/social-hour/internal/http"
	"github.com/heysouravv/social-hour/internal/http/handler"
	httpmiddleware "github.com/heysouravv/social-hour/internal/http/middleware"
	"github.com/heysouravv/social-hour/internal/jwt"
	"github.com/heysouravv/social-hour/internal/otp"
	"github.com/heysouravv/social-hour/internal/otp/local"
	"github.com/heysouravv/social-hour/internal/repository"
	"github.com/heysouravv/social-hour/internal/server"
	"github.com/heysouravv/social-hour/internal/service"
	"github.com/heysouravv/social-hour/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newRedisClient,
			newSessionStore,
			newChallengeStore,
			newWaitlistRepository,
			newPublisher,
			newResults,
			newOTPProvider,
			newController,
			newWaitlistService,
			newCookieSigner,
			newSessionCookies,
			newRateLimits,
			newLandingHandler,
			newWaitlistHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, runDispatcher, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// newRedisClient returns nil when sessions are kept in process.
func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newSessionStore(client redis.UniversalClient) repository.SessionStore {
	if client == nil {
		return cacheadapter.NewMemorySessionStore()
	}
	return cacheadapter.NewRedisSessionStore(client)
}

func newChallengeStore(client redis.UniversalClient) repository.ChallengeStore {
	if client == nil {
		return cacheadapter.NewMemoryChallengeStore()
	}
	return cacheadapter.NewRedisChallengeStore(client)
}

func newWaitlistRepository(lc fx.Lifecycle, cfg config.Config, node *snowflake.Node, logger *zap.Logger) (repository.WaitlistRepository, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, confirmed signups are kept in memory")
		return repository.NewMemoryWaitlistRepo(node), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return repository.NewPostgresWaitlistRepo(pool, node), nil
}

func newPublisher(lc fx.Lifecycle, cfg config.Config) events.Publisher {
	kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if kp == nil {
		return events.NopPublisher{}
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return kp.Close()
		},
	})
	return kp
}

func newResults() chan otp.Result {
	return otp.NewResults(16)
}

type closingProvider interface {
	otp.Provider
	Close() error
}

func newOTPProvider(lc fx.Lifecycle, cfg config.Config, results chan otp.Result, challenges repository.ChallengeStore, logger *zap.Logger) (otp.Provider, error) {
	var provider closingProvider
	switch cfg.OTPProvider {
	case config.OTPProviderOTPless:
		provider = otpless.NewClient(otpless.Options{
			AppID:        cfg.OTPlessAppID,
			ClientID:     cfg.OTPlessClientID,
			ClientSecret: cfg.OTPlessClientSecret,
			BaseURL:      cfg.OTPlessBaseURL,
			OTPLength:    cfg.OTPDigits,
			Expiry:       cfg.OTPTTL,
			Logger:       logger,
		}, results)
	case config.OTPProviderLocal:
		var sender local.Sender
		if cfg.SMSLocalAPIKey != "" {
			sender = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
		} else {
			logger.Warn("SMS_LOCAL_API_KEY not set, otp codes are written to the log")
			sender = local.NewLogSender(logger)
		}
		provider = local.NewProvider(challenges, sender, results, local.Options{
			Digits:      cfg.OTPDigits,
			TTL:         cfg.OTPTTL,
			MaxAttempts: cfg.OTPMaxAttempts,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("unknown otp provider %q", cfg.OTPProvider)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return provider.Close()
		},
	})
	logger.Info("otp provider ready", zap.String("provider", cfg.OTPProvider))
	return provider, nil
}

func newController(cfg config.Config, provider otp.Provider, logger *zap.Logger) *flow.Controller {
	return flow.NewController(provider, flow.Rules{
		Channel:     otp.ChannelPhone,
		CountryCode: cfg.CountryCode,
		PhoneDigits: cfg.PhoneDigits,
		OTPDigits:   cfg.OTPDigits,
	}, logger)
}

func newWaitlistService(
	cfg config.Config,
	sessions repository.SessionStore,
	entries repository.WaitlistRepository,
	publisher events.Publisher,
	controller *flow.Controller,
	results chan otp.Result,
	logger *zap.Logger,
) *service.WaitlistService {
	return service.NewWaitlistService(sessions, entries, publisher, controller, results, cfg.SessionTTL, logger)
}

func newCookieSigner(cfg config.Config, logger *zap.Logger) (*jwt.CookieSigner, error) {
	secret := cfg.SessionSecret
	if secret == "" {
		logger.Warn("SESSION_SECRET not set, using an ephemeral secret")
		secret = uuid.NewString()
	}
	signer, err := jwt.NewCookieSigner(secret, cfg.ServiceName, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	logger.Info("session cookie signer ready", zap.String("kid", signer.KeyID()))
	return signer, nil
}

func newSessionCookies(cfg config.Config, signer *jwt.CookieSigner, logger *zap.Logger) *httpmiddleware.SessionCookies {
	return httpmiddleware.NewSessionCookies(signer, cfg.SessionTTL, cfg.CookieSecure, logger)
}

func newRateLimits(cfg config.Config) httpmiddleware.RateLimits {
	return httpmiddleware.NewRateLimits(cfg.RateLimitRPM, cfg.SendRateLimitPerHour)
}

func newLandingHandler(cfg config.Config) *handler.LandingHandler {
	return handler.NewLandingHandler(cfg.DesktopMinWidth)
}

func newWaitlistHandler(cfg config.Config, svc *service.WaitlistService, cookies *httpmiddleware.SessionCookies, logger *zap.Logger) *handler.WaitlistHandler {
	return handler.NewWaitlistHandler(svc, cookies, cfg.VerifyWait, logger)
}

// runDispatcher applies provider results to sessions for the life of the app.
func runDispatcher(lc fx.Lifecycle, svc *service.WaitlistService, logger *zap.Logger) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				defer close(done)
				if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("otp result dispatcher stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(provider *telemetry.Provider, logger *zap.Logger) {
	if !provider.Enabled() {
		logger.Info("tracing disabled, OTEL_EXPORTER_OTLP_ENDPOINT not set")
	}
}
