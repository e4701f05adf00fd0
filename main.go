package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/config"
	"github.com/casetrail/engine/pkg/database"
	"github.com/casetrail/engine/pkg/handlers"
	"github.com/casetrail/engine/pkg/llm"
	"github.com/casetrail/engine/pkg/logging"
	"github.com/casetrail/engine/pkg/middleware"
	"github.com/casetrail/engine/pkg/repositories"
	"github.com/casetrail/engine/pkg/retrieval"
	"github.com/casetrail/engine/pkg/rules"
	"github.com/casetrail/engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("retrieval_base_url", cfg.Retrieval.BaseURL))

	ctx := context.Background()

	// Migrations run through database/sql; the serving path uses pgxpool.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	scopeProvider := database.NewTenantScopeProvider(db)
	txRunner := database.NewTxRunner()
	locker := database.NewCaseLocker()

	caseRepo := repositories.NewCaseRepository()
	evalRepo := repositories.NewRuleEvaluationRepository()
	retrievalRepo := repositories.NewRetrievalEventRepository()
	attemptRepo := repositories.NewGenerationAttemptRepository()
	narrativeRepo := repositories.NewNarrativeRepository()
	auditRepo := repositories.NewAuditRepository()

	generator, err := llm.NewGenerator(&cfg.LLM, logger)
	if err != nil {
		logger.Fatal("Failed to create generation client", zap.Error(err))
	}
	breaker := llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig())
	retriever := retrieval.NewClient(retrieval.ClientConfig{
		BaseURL: cfg.Retrieval.BaseURL,
		TopK:    cfg.Retrieval.TopK,
		Timeout: cfg.Retrieval.Timeout,
	}, logger)

	auditSvc := services.NewAuditService(auditRepo, logger)
	stateSvc := services.NewCaseStateService(caseRepo, auditSvc, logger)
	generationSvc := services.NewGenerationService(
		generator, breaker, attemptRepo, narrativeRepo, auditSvc, txRunner,
		cfg.LLM, cfg.Pipeline, logger)
	pipelineSvc := services.NewPipelineService(
		caseRepo, evalRepo, retrievalRepo,
		rules.NewEngine(rules.DefaultThresholds()),
		retriever, generationSvc, stateSvc, auditSvc, txRunner, locker,
		cfg.Retrieval, cfg.Pipeline, logger)
	narrativeSvc := services.NewNarrativeService(
		caseRepo, narrativeRepo, evalRepo, retrievalRepo,
		generationSvc, stateSvc, auditSvc, txRunner, cfg.Pipeline, logger)
	reconstructionSvc := services.NewReconstructionService(auditSvc, logger)

	// Data-plane routes require a tenant; health endpoints must not.
	apiMux := http.NewServeMux()
	handlers.NewCaseHandler(pipelineSvc, caseRepo, auditSvc, reconstructionSvc, logger).RegisterRoutes(apiMux)
	handlers.NewNarrativeHandler(narrativeSvc, logger).RegisterRoutes(apiMux)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	mux.Handle("/api/v1/",
		middleware.Actor()(
			middleware.TenantScope(scopeProvider, logger)(apiMux)))

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting casetrail-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
