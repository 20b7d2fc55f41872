package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"vecsearch/internal/config"
	"vecsearch/internal/domain"
	"vecsearch/internal/embedding"
	"vecsearch/internal/embedding/hashing"
	"vecsearch/internal/embedding/openai"
	"vecsearch/internal/httpapi"
	"vecsearch/internal/index"
	"vecsearch/internal/logging"
	"vecsearch/internal/rerank"
	"vecsearch/internal/rerank/lexical"
	"vecsearch/internal/rerank/remote"
	"vecsearch/internal/service"
	"vecsearch/internal/vectorstore"
	"vecsearch/internal/vectorstore/badgerstore"
	"vecsearch/internal/vectorstore/memory"
	"vecsearch/internal/vectorstore/qdrant"
	"vecsearch/internal/vectorstore/sqlitestore"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/vecsearch/config.yaml if not provided)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Configure(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	logger.Info("config loaded", "path", cfgPath, "store", cfg.VectorStore.Type, "embedder", cfg.Embedder.Type, "reranker", cfg.Reranker.Type)

	if err := run(cfg, cfgPath, logger); err != nil {
		logger.Error("searchd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, cfgPath string, logger *slog.Logger) error {
	emb, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	rr, err := buildReranker(cfg)
	if err != nil {
		return err
	}
	st, err := buildStore(cfg, emb, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	spec := domain.IndexSpec{
		Name:      cfg.Index.Name,
		Model:     cfg.Index.Model,
		Field:     cfg.Index.Field,
		Dimension: emb.Dimension(),
	}
	mgr := index.NewManager(spec, st, index.ManagerConfig{
		ReadyTimeout: cfg.Index.ReadyTimeout(),
		PollInterval: cfg.Index.PollInterval(),
		Settle:       cfg.Index.Settle(),
	}, logger)
	idx := index.New(spec.Name, st, rr, index.Options{
		Overfetch:     cfg.Index.Overfetch,
		MaxCandidates: cfg.Index.MaxCandidates,
	}, logger)
	svc := service.NewSearchService(mgr, idx, service.Options{RequestTimeout: cfg.Server.RequestTimeout()}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.EnsureReady(ctx); err != nil {
		return err
	}
	go reloadOnHangup(ctx, cfgPath, logger)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewRouter(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "index", spec.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing":
		return hashing.NewEmbedder(cfg.Embedder.Hashing.Dimension), nil
	case "openai":
		o := cfg.Embedder.OpenAI
		return openai.NewClient(openai.Config{
			BaseURL:           o.BaseURL,
			APIKeyEnv:         o.APIKeyEnv,
			Model:             o.Model,
			Timeout:           time.Duration(o.TimeoutSecs) * time.Second,
			Dimensions:        o.Dimensions,
			MaxRetries:        o.MaxRetries,
			RequestsPerSecond: o.RequestsPerSecond,
		})
	}
	return nil, errors.New("unknown embedder: " + cfg.Embedder.Type)
}

func buildReranker(cfg *config.AppConfig) (rerank.Reranker, error) {
	switch cfg.Reranker.Type {
	case "lexical":
		return lexical.New(), nil
	case "remote":
		r := cfg.Reranker.Remote
		return remote.NewClient(remote.Config{
			BaseURL:           r.BaseURL,
			APIKeyEnv:         r.APIKeyEnv,
			AuthHeader:        r.AuthHeader,
			Model:             r.Model,
			Timeout:           time.Duration(r.TimeoutSecs) * time.Second,
			RequestsPerSecond: r.RequestsPerSecond,
		})
	}
	return nil, errors.New("unknown reranker: " + cfg.Reranker.Type)
}

func buildStore(cfg *config.AppConfig, emb embedding.Embedder, logger *slog.Logger) (vectorstore.Storage, error) {
	name := cfg.Index.Name
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(emb), nil
	case "badger":
		return badgerstore.Open(badgerstore.Config{Name: name, Dir: cfg.VectorStore.Badger.Dir, Logger: logger}, emb)
	case "sqlite":
		return sqlitestore.Open(sqlitestore.Config{Name: name, DSN: cfg.VectorStore.SQLite.DSN}, emb)
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		var key string
		if q.APIKeyEnv != "" {
			key = os.Getenv(q.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			Addr:       q.Addr,
			APIKey:     key,
			Collection: q.Collection,
			Field:      cfg.Index.Field,
			Logger:     logger,
		}, emb)
	}
	return nil, errors.New("unknown vector store: " + cfg.VectorStore.Type)
}

// reloadOnHangup re-reads the config file on SIGHUP and applies its log level.
func reloadOnHangup(ctx context.Context, cfgPath string, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Warn("config reload failed", "path", cfgPath, "error", err)
				continue
			}
			level := logging.SetLevel(cfg.Log.Level)
			logger.Info("log level reloaded", "path", cfgPath, "level", level.String())
		}
	}
}
