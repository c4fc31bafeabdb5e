package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/efebarandurmaz/crucible/internal/config"
	"github.com/efebarandurmaz/crucible/internal/extract"
	graphneo4j "github.com/efebarandurmaz/crucible/internal/graph/neo4j"
	"github.com/efebarandurmaz/crucible/internal/ingest"
	"github.com/efebarandurmaz/crucible/internal/llm"
	"github.com/efebarandurmaz/crucible/internal/llmutil"
	"github.com/efebarandurmaz/crucible/internal/observability"
	"github.com/efebarandurmaz/crucible/internal/server"
	temporalmod "github.com/efebarandurmaz/crucible/internal/temporal"
	"github.com/efebarandurmaz/crucible/internal/vector"
	"github.com/efebarandurmaz/crucible/internal/vector/qdrant"

	temporalclient "go.temporal.io/sdk/client"
)

func main() {
	configPath := "configs/crucible.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	logger := log.New(os.Stderr).With("component", "worker")
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("config", "error", err)
	}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "crucible-worker",
		Environment:  cfg.Tracing.Environment,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Fatal("tracing", "error", err)
	}

	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)
	provider, err := factory.Create(llm.ProviderConfig{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		BaseURL:    cfg.LLM.BaseURL,
		EmbedModel: cfg.LLM.EmbedModel,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		logger.Fatal("llm provider", "error", err)
	}
	if provider == nil {
		logger.Fatal("llm provider is required for the ingestion worker (set llm.provider)")
	}
	provider = llm.WithRateLimit(provider, llm.DefaultRateLimitConfig())

	vectorStore, err := qdrant.NewManager(ctx, cfg.Vector.Host, cfg.Vector.Port, logger.With("component", "vector"))
	if err != nil {
		logger.Fatal("qdrant", "error", err)
	}
	graphStore, err := graphneo4j.NewStore(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
	if err != nil {
		logger.Fatal("neo4j", "error", err)
	}
	if err := graphStore.EnsureUniqueIDConstraint(ctx); err != nil {
		logger.Fatal("graph constraint", "error", err)
	}

	service := ingest.NewService(vectorStore, graphStore, vector.NewBatcher(provider), extract.New(provider))
	service.SetLogger(logger.With("component", "ingest"))
	temporalmod.SetDependencies(&temporalmod.Dependencies{Service: service})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logger.Fatal("temporal client", "error", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		logger.Fatal("worker", "error", err)
	}
	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue)

	health := server.NewHealthServer("0.1.0", observability.Metrics().Handler())
	health.RegisterCheck("graph", server.PingHealthChecker("neo4j", func(ctx context.Context) error {
		_, err := graphStore.GetNodeByID(ctx, "health-probe")
		return err
	}))
	health.RegisterCheck("vector", server.PingHealthChecker("qdrant", func(ctx context.Context) error {
		_, err := vectorStore.ListCollections(ctx)
		return err
	}))

	shutdown := server.NewShutdownHandler(0)
	shutdown.RegisterHook(server.HealthServerShutdownHook(health))
	shutdown.RegisterHook(server.TemporalWorkerShutdownHook(func() {
		w.Stop()
		c.Close()
	}))
	shutdown.RegisterHook(server.TracingShutdownHook(tp.Shutdown))
	shutdown.RegisterHook(server.VectorStoreShutdownHook(vectorStore.Close))
	shutdown.RegisterHook(server.GraphStoreShutdownHook(graphStore.Close))
	shutdown.Start()

	go func() {
		if err := health.ListenAndServe(":8080"); err != nil {
			logger.Warn("health server stopped", "error", err)
		}
	}()
	health.SetReady(true)

	shutdown.Wait()
	logger.Info("worker stopped")
}
