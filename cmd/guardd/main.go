package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/PabloGalante/guard-agent/internal/adapters/httpapi"
	"github.com/PabloGalante/guard-agent/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/guard-agent/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/guard-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/guard-agent/internal/app/chat"
	"github.com/PabloGalante/guard-agent/internal/app/enroll"
	"github.com/PabloGalante/guard-agent/internal/app/guard"
	"github.com/PabloGalante/guard-agent/internal/app/interrogate"
	"github.com/PabloGalante/guard-agent/internal/app/resolve"
	"github.com/PabloGalante/guard-agent/internal/config"
	"github.com/PabloGalante/guard-agent/internal/domain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	// LLM: mock or Vertex by config (useful for dev)
	var (
		llmClient domain.LLMClient
		err       error
	)

	if cfg.UseMockLLM {
		log.Println("[LLM] Using MOCK LLM client")
		llmClient = llm.NewMockLLM()
	} else {
		log.Println("[LLM] Using Vertex LLM client")
		llmClient, err = llm.NewVertexClient(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.ModelName)
		if err != nil {
			log.Fatalf("error initializing Vertex LLM client: %v", err)
		}
	}

	// Storage: Firestore or Memory
	var (
		roster  domain.RosterStore
		archive domain.EncounterArchive
		events  domain.EventLog
	)

	switch cfg.StorageBackend {
	case "firestore":
		if cfg.GCPProjectID == "" {
			log.Fatal("GUARD_GCP_PROJECT is required for Firestore storage backend")
		}

		log.Printf("[STORE] Using Firestore storage (project=%s)", cfg.GCPProjectID)
		fsStore, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			log.Fatalf("error initializing Firestore store: %v", err)
		}

		// 1 store, implements 3 interfaces
		roster = fsStore
		archive = fsStore
		events = fsStore

	default:
		log.Println("[STORE] Using in-memory storage")
		roster = memstore.NewRosterStore()
		archive = memstore.NewEncounterStore()
		events = memstore.NewEventLog()
	}

	hub := httpapi.NewHub()

	engine := guard.NewEngine(guard.Params{
		DebounceWindow: cfg.DebounceWindow,
		Level1Timeout:  cfg.Level1Timeout,
		Level2Timeout:  cfg.Level2Timeout,
		Level3Timeout:  cfg.Level3Timeout,

		SmoothWindow: cfg.SmoothWindow,
		ContextTurns: cfg.ContextTurns,

		ScoreCooperative: cfg.ScoreCooperative,
		ScoreEvasive:     cfg.ScoreEvasive,
		ScoreHostile:     cfg.ScoreHostile,

		CooperationGate:        cfg.CooperationGate,
		InterrogationExchanges: cfg.InterrogationExchanges,

		GrantMinCooperative: cfg.GrantMinCooperative,
		GrantMinElapsed:     cfg.GrantMinElapsed,

		ChatSilenceTimeout: cfg.ChatSilenceTimeout,
	}, guard.Deps{
		Resolver: resolve.New(cfg.RecognitionThreshold),
		Policy:   interrogate.New(llmClient, cfg.LLMTimeout),
		Chat:     chat.NewService(llmClient, events, cfg.LLMTimeout),
		Roster:   roster,
		Archive:  archive,
		Events:   events,
		Actions:  hub,
	})

	go engine.Run(ctx, 500*time.Millisecond)

	enrollSvc := enroll.NewService(roster)
	handler := httpapi.NewServer(engine, enrollSvc, hub)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Println("guardd listening on port:", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
