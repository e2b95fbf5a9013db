package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"hookrelay.io/internal/apps"
	"hookrelay.io/internal/auth"
	"hookrelay.io/internal/config"
	"hookrelay.io/internal/envelope"
	"hookrelay.io/internal/grpcapi"
	"hookrelay.io/internal/grpcauth"
	"hookrelay.io/internal/httpapi"
	"hookrelay.io/internal/migrate"
	"hookrelay.io/internal/obs"
	"hookrelay.io/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	obs.ConfigureLogger(cfg.LogLevel, nil)
	obs.Init()

	tokens, err := auth.NewTokens(auth.NewKeys([]byte(cfg.Auth.JWTSecret)), cfg.Auth.Issuer)
	if err != nil {
		log.WithError(err).Fatal("init tokens")
	}

	// The ed25519 key is not used for bearer tokens. It is loaded at startup so
	// a bad auth.signing_key fails fast, and is held for signing outbound
	// artifacts; only its public half is logged.
	signing, err := auth.LoadAsymmetricKey(cfg.Auth.SigningKey)
	if err != nil {
		log.WithError(err).Fatal("load signing key")
	}
	log.WithField("key", signing.String()).Info("signing key ready")

	cipher, err := envelope.FromBase64(cfg.EncryptionKey)
	if err != nil {
		log.WithError(err).Fatal("load encryption key")
	}
	obs.InitBuildInfo(version, commit, cipher.Enabled())
	if !cipher.Enabled() {
		log.Warn("encryption_key is not set; secrets are stored unencrypted")
	}

	var (
		store apps.Store
		ready httpapi.ReadyProbe
		db    *pg.Store
	)
	if cfg.DB.DSN != "" {
		db, err = pg.Open(cfg.DB.DSN, pg.PoolConfig{
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		}, cipher)
		if err != nil {
			log.WithError(err).Fatal("open db")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := migrate.NewManager(db.DB(), nil).Up(ctx); err != nil {
			cancel()
			log.WithError(err).Fatal("apply migrations")
		}
		cancel()
		store = db
		ready = db.Ping
	} else {
		log.Warn("db.dsn is not set; using in-memory application store")
		store = apps.NewInMemory(cipher)
	}
	store = apps.NewCached(store, cfg.Cache.Size, cfg.Cache.TTL)

	proxies, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.WithError(err).Fatal("parse trusted proxies")
	}

	api := httpapi.New(tokens, store, httpapi.Options{
		Version:        version,
		Ready:          ready,
		RateBurst:      cfg.Rate.Burst,
		RatePerSecond:  cfg.Rate.PerSecond,
		TrustedProxies: proxies,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.WithFields(logrus.Fields{"version": version, "addr": srv.Addr}).Info("starting hookrelay")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcSrv = startGRPC(cfg.GRPCAddr, tokens, store, log)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Info("stopped")
}

func startGRPC(addr string, tokens *auth.Tokens, store apps.Store, log *logrus.Logger) *grpc.Server {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.WithError(err).Fatal("grpc listen")
	}
	icpt := grpcauth.New(tokens)
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(icpt.Unary()),
		grpc.StreamInterceptor(icpt.Stream()),
	)
	hs := health.NewServer()
	hs.SetServingStatus("hookrelay", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	grpcapi.RegisterAppsServer(srv, grpcapi.NewAppsServer(tokens, store))

	go func() {
		log.WithField("addr", addr).Info("starting grpc")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.WithError(err).Error("grpc serve")
		}
	}()
	return srv
}
