// Package server wires all blueprint components and creates the MCP server.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts, resources and HTTP handlers that
// depend on abstractions. No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/HendryAvila/blueprint/internal/config"
	"github.com/HendryAvila/blueprint/internal/embedding"
	"github.com/HendryAvila/blueprint/internal/feedback"
	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/pipeline"
	"github.com/HendryAvila/blueprint/internal/prediction"
	"github.com/HendryAvila/blueprint/internal/prompts"
	"github.com/HendryAvila/blueprint/internal/resources"
	"github.com/HendryAvila/blueprint/internal/session"
	"github.com/HendryAvila/blueprint/internal/signal"
	"github.com/HendryAvila/blueprint/internal/store"
	"github.com/HendryAvila/blueprint/internal/templates"
	"github.com/HendryAvila/blueprint/internal/tenant"
	"github.com/HendryAvila/blueprint/internal/tools"
	"github.com/HendryAvila/blueprint/internal/validation"
	"github.com/HendryAvila/blueprint/internal/vectorindex"
)

// Version is set at build time via ldflags.
var Version = "dev"

// App holds the wired components. Every transport drives the same Manager.
type App struct {
	MCP      *server.MCPServer
	Manager  *session.Manager
	Library  *patterns.Library
	Index    *vectorindex.Index
	Renderer templates.Renderer
	// Store is nil when persistence could not be opened.
	Store  *store.Store
	Logger *zap.Logger
}

// New builds the application from cfg. This is the single place where all
// dependencies are resolved.
//
// Persistence and embeddings are optional subsystems: if the store cannot be
// opened or the embedding provider fails, blueprint keeps working with
// in-memory learning and rule-based matching, and logs a warning.
//
// The returned cleanup function closes the store and must be called on
// shutdown. It is always non-nil.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// --- Pattern catalogue ---

	library := patterns.NewLibrary(
		patterns.WithMinScore(cfg.Matching.RuleMinScore),
		patterns.WithLogger(logger),
	)
	builtin, err := patterns.Builtin()
	if err != nil {
		return nil, noop, fmt.Errorf("loading builtin catalogue: %w", err)
	}
	if err := library.RegisterAll(builtin); err != nil {
		return nil, noop, fmt.Errorf("registering builtin catalogue: %w", err)
	}
	if cfg.CatalogDir != "" {
		extra, err := patterns.LoadDir(cfg.CatalogDir)
		if err != nil {
			return nil, noop, fmt.Errorf("loading catalogue %s: %w", cfg.CatalogDir, err)
		}
		if err := library.RegisterAll(extra); err != nil {
			return nil, noop, fmt.Errorf("registering catalogue %s: %w", cfg.CatalogDir, err)
		}
		logger.Info("loaded extra catalogue", zap.String("dir", cfg.CatalogDir), zap.Int("patterns", len(extra)))
	}

	// --- Persistence ---
	//
	// The store is optional: without it signals and outcomes go to memory
	// and nothing learned survives a restart.

	cleanup := noop
	st, stErr := store.New(store.Config{DataDir: cfg.DataDir})
	if stErr != nil {
		logger.Warn("persistence disabled", zap.Error(stErr))
	} else {
		cleanup = func() {
			if err := st.Close(); err != nil {
				logger.Warn("closing store", zap.Error(err))
			}
		}
		restoreConfidence(ctx, st, library, logger)
	}

	// --- Embeddings ---

	engine, err := embedding.NewEngine(ctx, cfg.Embedding)
	if err != nil {
		logger.Warn("embedding provider disabled, using rule matching only",
			zap.String("provider", cfg.Embedding.Provider), zap.Error(err))
		engine = nil
	}

	indexOpts := []vectorindex.Option{
		vectorindex.WithFusionAlpha(cfg.Matching.FusionAlpha),
		vectorindex.WithLogger(logger),
	}
	var tenantStore tenant.Store
	if st != nil {
		indexOpts = append(indexOpts, vectorindex.WithStore(st))
		tenantStore = st
	}
	index := vectorindex.New(engine, library, indexOpts...)
	if err := index.Initialize(ctx); err != nil {
		logger.Warn("vector index not initialised", zap.Error(err))
	}

	tenants, err := tenant.NewProvider(engine, tenantStore, cfg.Tenant.CacheSize, logger)
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("creating tenant provider: %w", err)
	}

	// --- Pipeline ---

	mem := &feedback.MemorySink{}
	var (
		sink     feedback.Sink        = mem
		outcomes feedback.OutcomeSink = mem
	)
	if st != nil {
		sink, outcomes = st, st
	}

	validator := validation.NewService(
		validation.WithLowConfidence(cfg.Matching.LowConfidence),
		validation.WithLogger(logger),
	)
	predictor := prediction.NewEngine(library,
		prediction.WithVectorIndex(index),
		prediction.WithVectorMinScore(cfg.Matching.VectorMinScore),
		prediction.WithLogger(logger),
	)
	orch := pipeline.New(signal.NewProcessor(), predictor, validator,
		pipeline.WithVectorIndex(index),
		pipeline.WithTenantResolver(tenants),
		pipeline.WithOutcomeSink(outcomes),
		pipeline.WithConfig(cfg.Pipeline),
		pipeline.WithLogger(logger),
	)

	managerOpts := []session.Option{
		session.WithValidator(validator),
		session.WithTenants(tenants),
		session.WithLogger(logger),
	}
	if st != nil {
		managerOpts = append(managerOpts, session.WithConfidenceStore(st))
	}
	manager := session.NewManager(orch,
		feedback.NewService(sink, feedback.WithLogger(logger)),
		library,
		managerOpts...,
	)

	renderer, err := templates.NewRenderer()
	if err != nil {
		cleanup()
		return nil, noop, err
	}

	app := &App{
		MCP:      newMCPServer(manager, renderer),
		Manager:  manager,
		Library:  library,
		Index:    index,
		Renderer: renderer,
		Store:    st,
		Logger:   logger,
	}

	logger.Info("blueprint ready",
		zap.Int("patterns", library.Len()),
		zap.Bool("vector_index", index.IsInitialized()),
		zap.Bool("persistence", st != nil),
	)
	return app, cleanup, nil
}

// restoreConfidence loads grounding snapshots into the library. Snapshots for
// patterns no longer in the catalogue are skipped.
func restoreConfidence(ctx context.Context, st *store.Store, library *patterns.Library, logger *zap.Logger) {
	saved, err := st.LoadConfidence(ctx)
	if err != nil {
		logger.Warn("grounding state not restored", zap.Error(err))
		return
	}
	for id, c := range saved {
		if err := library.RestoreConfidence(id, c); err != nil {
			logger.Debug("skipping grounding snapshot", zap.String("pattern", id), zap.Error(err))
		}
	}
}

// newMCPServer registers every tool, prompt and resource.
func newMCPServer(manager *session.Manager, renderer templates.Renderer) *server.MCPServer {
	s := server.NewMCPServer(
		"blueprint",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	predictTool := tools.NewPredictTool(manager, renderer)
	s.AddTool(predictTool.Definition(), predictTool.Handle)

	refineTool := tools.NewRefineTool(manager, renderer)
	s.AddTool(refineTool.Definition(), refineTool.Handle)

	feedbackTool := tools.NewFeedbackTool(manager)
	s.AddTool(feedbackTool.Definition(), feedbackTool.Handle)

	outcomeTool := tools.NewRecordOutcomeTool(manager)
	s.AddTool(outcomeTool.Definition(), outcomeTool.Handle)

	groundTool := tools.NewGroundPatternTool(manager)
	s.AddTool(groundTool.Definition(), groundTool.Handle)

	listTool := tools.NewListPatternsTool(manager, renderer)
	s.AddTool(listTool.Definition(), listTool.Handle)

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(manager)
	s.AddResource(resourceHandler.PatternsResource(), resourceHandler.HandlePatterns)
	s.AddResourceTemplate(resourceHandler.SessionTemplate(), resourceHandler.HandleSession)

	return s
}

// noop is the default cleanup when nothing needs closing.
func noop() {}

// serverInstructions tells the AI how to use blueprint.
func serverInstructions() string {
	return `You have access to blueprint, which turns plain-language requirements
into validated module structures (sections, fields, workflow steps).

## WHEN TO USE blueprint

Use it when the user asks to create a form, checklist, register, report or
other data-capture module, e.g. "create a safety assessment form" or
"we need an incident report for the warehouse".

## Workflow

1. blueprint_predict: pass the requirement in the user's own words. Pass
   company (and project) when known; predictions are biased towards that
   tenant's past choices. The response carries a session_id.
2. Show the structure. If clarity questions are listed, ask them.
3. blueprint_refine: one call per edit the user asks for ("add field
   supervisor name", "remove section controls", "make location optional").
4. blueprint_feedback: when the user is done, record 'accepted',
   'modified' or 'rejected'. This closes the session and is how blueprint
   learns. Do not skip it.

## Other tools

- blueprint_list_patterns: the catalogue with current confidence.
- blueprint_ground_pattern: record that a pattern was used in production.
- blueprint_record_outcome: a verdict about a pattern outside any session.

Never edit a structure by hand; always go through blueprint_refine so the
edit is learned from.`
}
