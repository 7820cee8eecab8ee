// Command server runs the membership identity service: registration and
// activation for operators, token-based verification for the public. main
// wires dependencies from configuration and keeps the lifecycle small;
// business logic lives in the internal service packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"membergate/internal/docstore"
	"membergate/internal/gateway"
	"membergate/internal/gateway/apikey"
	"membergate/internal/gateway/captcha"
	gatewayhandler "membergate/internal/gateway/handler"
	"membergate/internal/gateway/ratelimit"
	memberhandler "membergate/internal/member/handler"
	"membergate/internal/member/idempotency"
	"membergate/internal/member/service"
	"membergate/internal/notify"
	"membergate/internal/platform/config"
	"membergate/internal/platform/httpserver"
	"membergate/internal/platform/logger"
	"membergate/internal/platform/metrics"
	platformredis "membergate/internal/platform/redis"
	"membergate/internal/token"
	"membergate/internal/token/revocation"
	httptransport "membergate/internal/transport/http"
	auditkafka "membergate/pkg/platform/audit/kafka"
	"membergate/pkg/platform/audit/publisher"
	auditmemory "membergate/pkg/platform/audit/store/memory"
	auditpostgres "membergate/pkg/platform/audit/store/postgres"
)

func main() {
	log := logger.New(slog.LevelInfo)
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Document store: Postgres when a DSN is configured, in-memory otherwise.
	var store docstore.Store
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		pg, err := docstore.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store = pg

		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
	} else {
		store = docstore.NewMemory()
		log.Warn("no postgres DSN configured, using in-memory store")
	}

	// Revocation ledger: Redis preferred for low-latency lookups on the
	// verification path, then Postgres, then memory.
	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	var ledger revocation.Ledger
	switch {
	case redisClient != nil:
		defer redisClient.Close()
		ledger = revocation.NewRedisLedger(redisClient.Client)
	case db != nil:
		pgLedger := revocation.NewPostgresLedger(db)
		if err := pgLedger.Migrate(ctx); err != nil {
			return err
		}
		ledger = pgLedger
	default:
		ledger = revocation.NewInMemoryLedger()
	}

	// Audit trail: Kafka when brokers are configured, otherwise the store.
	var sink publisher.Sink
	switch {
	case len(cfg.KafkaBrokers) > 0:
		kafkaPub, err := auditkafka.NewPublisher(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return err
		}
		defer kafkaPub.Close()
		sink = kafkaPub
	case db != nil:
		auditStore := auditpostgres.New(db)
		if err := auditStore.Migrate(ctx); err != nil {
			return err
		}
		sink = auditStore
	default:
		sink = auditmemory.NewInMemoryStore()
	}
	auditor := publisher.NewPublisher(sink, log, publisher.WithAsyncBuffer(256))
	defer auditor.Close()

	ring, err := token.NewKeyring(cfg.SigningKeys, cfg.ActiveKid)
	if err != nil {
		return err
	}
	issuer := token.NewIssuer(ring)

	keyStore := apikey.NewInMemoryStore()
	if err := seedAPIKeys(ctx, keyStore, cfg); err != nil {
		return err
	}
	authenticator := apikey.NewAuthenticator(keyStore)

	var captchaVerifier captcha.Verifier
	if cfg.CaptchaSecret != "" {
		captchaVerifier = captcha.NewHTTPVerifier(cfg.CaptchaEndpoint, cfg.CaptchaSecret)
	} else {
		captchaVerifier = captcha.StaticVerifier{Allow: true}
		log.Warn("no captcha secret configured, captcha checks disabled")
	}
	limiter := ratelimit.NewLimiter(store, cfg.VerifyPerMinute, cfg.VerifyPerDay)

	guard := idempotency.NewGuard(store)
	notifier := notify.NewLogNotifier(log)
	members := service.New(store, guard, issuer, notifier, auditor, m, log, cfg.MemberNoPrefix)
	gw := gateway.New(members, issuer, ledger, limiter, captchaVerifier, authenticator, auditor, m, log,
		gateway.WithTrustedMode(cfg.TrustedMode))

	router := httptransport.NewRouter(log,
		func() error {
			if db != nil {
				return db.PingContext(ctx)
			}
			return nil
		},
		gatewayhandler.New(gw, log),
		memberhandler.New(members, gw, authenticator, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// seedAPIKeys loads the bootstrap credentials into the key store. Credentials
// are "<id>.<secret>"; only the bcrypt hash of the secret is stored.
func seedAPIKeys(ctx context.Context, store apikey.Store, cfg config.Config) error {
	seed := func(credential, name string, scopes []string) error {
		if credential == "" {
			return nil
		}
		id, secret, ok := strings.Cut(credential, ".")
		if !ok || id == "" || secret == "" {
			return errors.New("config: bootstrap api key must be of form <id>.<secret>")
		}
		hash, err := apikey.Hash(secret)
		if err != nil {
			return err
		}
		return store.Create(ctx, apikey.Key{
			ID:         id,
			Name:       name,
			SecretHash: hash,
			Scopes:     scopes,
			CreatedAt:  time.Now().UTC(),
		})
	}
	if err := seed(cfg.AdminAPIKey, "bootstrap-admin", []string{apikey.ScopeAdmin, apikey.ScopeVerify}); err != nil {
		return err
	}
	return seed(cfg.VerifyAPIKey, "bootstrap-verify", []string{apikey.ScopeVerify})
}
