package main

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"casedesk.org/internal/audit"
	"casedesk.org/internal/audit/anomaly"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/cases"
	"casedesk.org/internal/config"
	"casedesk.org/internal/draft"
	"casedesk.org/internal/evidence"
	"casedesk.org/internal/httpapi"
	"casedesk.org/internal/obs"
	"casedesk.org/internal/send"
	"casedesk.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type stores struct {
	cases  cases.Store
	drafts draft.Store
	sends  send.Store
	audit  audit.Store
	ready  httpapi.ReadyProbe
	close  func() error
}

func main() {
	cfg := config.MustLoad()

	logger, err := obs.NewLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	obs.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	// Инициализация observability (регистрация метрик)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	st, err := openStores(cfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer func() { _ = st.close() }()

	tokens, err := auth.NewTokenAuthority(cfg.AuthSecret, cfg.AuthIssuer)
	if err != nil {
		logger.Fatal("token authority", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := audit.NewRecorder(st.audit, logger)
	gateOpts := []send.Option{send.WithLogger(logger)}
	if cfg.EvidenceBucket != "" {
		client, err := evidence.NewS3Client(ctx, cfg.EvidenceRegion, os.Getenv)
		if err != nil {
			logger.Fatal("evidence client", zap.Error(err))
		}
		gateOpts = append(gateOpts, send.WithArchiver(evidence.NewS3Archiver(client, cfg.EvidenceBucket, cfg.EvidencePrefix)))
		logger.Info("evidence archiving enabled", zap.String("bucket", cfg.EvidenceBucket))
	}

	svc := httpapi.Services{
		Auth:   tokens,
		Cases:  cases.NewService(st.cases, rec, logger),
		Drafts: draft.NewService(st.drafts, st.cases, rec, draft.NewFlagLinter(cfg.FlagPhrases), logger),
		Sends:  send.NewGate(st.sends, st.cases, st.drafts, rec, gateOpts...),
		Audit:  audit.NewViewer(st.audit, rec),
		Scanner: anomaly.NewScanner(st.audit,
			anomaly.QuickConfig{Lookback: cfg.QuickLookback, Threshold: cfg.QuickThreshold, MinCount: cfg.QuickMinCount},
			anomaly.BulkConfig{Bucket: cfg.BulkBucket, MinCount: cfg.BulkMinCount, Lookback: anomaly.DefaultBulk.Lookback},
			logger),
	}

	api := httpapi.New(svc, st.ready, version,
		httpapi.WithLogger(logger),
		httpapi.WithRateLimit(int(math.Ceil(cfg.RateLimitRPS)), cfg.RateLimitBurst),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
		httpapi.WithTrustedProxies(cfg.TrustedProxies...),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	health := httpapi.NewHealthServer(st.ready, logger)
	health.Register(grpcSrv)
	go health.Run(ctx, 10*time.Second)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("grpc listen", zap.Error(err))
	}
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc serve", zap.Error(err))
		}
	}()

	logger.Info("starting casedesk-api",
		zap.String("version", version),
		zap.String("http_addr", srv.Addr),
		zap.String("grpc_addr", cfg.GRPCAddr))

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	logger.Info("stopped")
}

// openStores returns postgres-backed stores when a DSN is configured and
// in-memory ones otherwise.
func openStores(cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.PGDSN == "" {
		logger.Warn("CASEDESK_PG_DSN not set, using in-memory stores")
		return stores{
			cases:  cases.NewMemoryStore(),
			drafts: draft.NewMemoryStore(),
			sends:  send.NewMemoryStore(),
			audit:  audit.NewMemoryStore(),
			close:  func() error { return nil },
		}, nil
	}
	db, err := pg.Open(cfg.PGDSN)
	if err != nil {
		return stores{}, err
	}
	return stores{
		cases:  db.Cases(),
		drafts: db.Drafts(),
		sends:  db.Sends(),
		audit:  db.Audit(),
		ready:  httpapi.ReadyProbe{DB: db.DB()},
		close:  db.Close,
	}, nil
}
