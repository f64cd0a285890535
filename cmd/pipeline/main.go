// Pipeline server - composes the RAG request orchestrator and exposes it
// over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/qdrant/go-client/qdrant"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/musicofhel/enterprise-pipeline/pkg/api"
	"github.com/musicofhel/enterprise-pipeline/pkg/audit"
	"github.com/musicofhel/enterprise-pipeline/pkg/compress"
	"github.com/musicofhel/enterprise-pipeline/pkg/config"
	"github.com/musicofhel/enterprise-pipeline/pkg/database"
	"github.com/musicofhel/enterprise-pipeline/pkg/expansion"
	"github.com/musicofhel/enterprise-pipeline/pkg/experiment"
	"github.com/musicofhel/enterprise-pipeline/pkg/grounding"
	"github.com/musicofhel/enterprise-pipeline/pkg/llm"
	"github.com/musicofhel/enterprise-pipeline/pkg/metrics"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
	"github.com/musicofhel/enterprise-pipeline/pkg/orchestrator"
	"github.com/musicofhel/enterprise-pipeline/pkg/retrieval"
	"github.com/musicofhel/enterprise-pipeline/pkg/routing"
	"github.com/musicofhel/enterprise-pipeline/pkg/safety"
	"github.com/musicofhel/enterprise-pipeline/pkg/trace"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// newVectorStore selects the vector store backend from config. Qdrant
// connection details come from the environment, mirroring the database
// config path.
func newVectorStore(cfg *config.Config, pool *pgxpool.Pool) (retrieval.Store, error) {
	switch cfg.Retrieval.Backend {
	case config.VectorBackendQdrant:
		port, err := strconv.Atoi(getEnv("QDRANT_PORT", "6334"))
		if err != nil {
			return nil, fmt.Errorf("invalid QDRANT_PORT: %w", err)
		}
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:   getEnv("QDRANT_HOST", "localhost"),
			Port:   port,
			APIKey: os.Getenv("QDRANT_API_KEY"),
			UseTLS: os.Getenv("QDRANT_USE_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("creating qdrant client: %w", err)
		}
		return retrieval.NewQdrantStore(client, getEnv("QDRANT_COLLECTION", "chunks")), nil
	default:
		return retrieval.NewPgvectorStore(pool), nil
	}
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "release"))

	ctx := context.Background()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbClient.Close()
	log.Println("Connected to PostgreSQL, schema up to date")

	// Observation layer.
	meterProvider := sdkmetric.NewMeterProvider()
	defer func() { _ = meterProvider.Shutdown(ctx) }()
	metricSink := metrics.NewOTelSink(meterProvider)

	traceSink := trace.NewFallbackSink(
		trace.NewPostgresSink(dbClient.Pool()),
		trace.NewFileSink(getEnv("TRACE_FALLBACK_PATH", "traces.jsonl")),
	)
	auditSink := audit.NewPostgresSink(dbClient.Pool())

	clock := trace.SystemClock{}
	idgen := trace.UUIDGen{}
	auditRec := audit.NewRecorder(auditSink, clock, idgen)

	// Model collaborators.
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}
	baseURL := os.Getenv("OPENAI_BASE_URL")
	embedder := retrieval.NewOpenAIEmbedder(apiKey, baseURL,
		getEnv("EMBEDDING_MODEL", "text-embedding-3-small"))
	llmClient := llm.NewOpenAIClient(apiKey, baseURL)

	router, err := routing.New(ctx, cfg.Routing, embedder)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	store, err := newVectorStore(cfg, dbClient.Pool())
	if err != nil {
		log.Fatalf("Failed to build vector store: %v", err)
	}
	retriever := retrieval.NewRetriever(embedder, store,
		cfg.Retrieval.TopK, cfg.Retrieval.MaxParallel)

	flags := experiment.NewFlagResolver(cfg.Flags, "control")
	shadow := experiment.NewRunner(cfg.Shadow, metricSink)

	orch := orchestrator.New(orchestrator.Deps{
		Config:          cfg,
		Clock:           clock,
		IDGen:           idgen,
		Injection:       safety.NewInjectionDetector(),
		PII:             safety.NewPIIDetector(),
		Router:          router,
		Expander:        expansion.New(llmClient, cfg.Generation.Tiers[models.TierFast]),
		Retriever:       retriever,
		Deduper:         retrieval.NewDeduper(cfg.Dedup.Threshold),
		Reranker:        retrieval.Passthrough{},
		Compressor:      compress.New(cfg.Compression.SentencesPerChunk, cfg.Compression.ContextBudget()),
		TierPolicy:      llm.NewTierPolicy(cfg.Generation),
		LLM:             llmClient,
		Judge:           grounding.NewJudge(grounding.LexicalScorer{}, cfg.Grounding),
		Validator:       grounding.NewOutputValidator(),
		Flags:           flags,
		VariantRecorder: experiment.NewVariantRecorder(auditRec, metricSink),
		Shadow:          shadow,
		TraceSink:       traceSink,
		Audit:           auditRec,
		Metrics:         metricSink,
	})

	server := api.NewServer(cfg, orch, dbClient, auditRec, metricSink)

	log.Printf("HTTP server listening on :%s", httpPort)
	if err := server.Router().Run(":" + httpPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
