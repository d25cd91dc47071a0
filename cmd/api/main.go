package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-interview/backend/internal/config"
	"github.com/zhouzirui/z-interview/backend/internal/handler"
	"github.com/zhouzirui/z-interview/backend/internal/model/preset"
	"github.com/zhouzirui/z-interview/backend/internal/repository"
	"github.com/zhouzirui/z-interview/backend/internal/repository/memory"
	"github.com/zhouzirui/z-interview/backend/internal/repository/sqlite"
	"github.com/zhouzirui/z-interview/backend/internal/service/ai"
	"github.com/zhouzirui/z-interview/backend/internal/service/interview"
	"github.com/zhouzirui/z-interview/backend/internal/service/question"
	"github.com/zhouzirui/z-interview/backend/internal/service/speech"
	"github.com/zhouzirui/z-interview/backend/internal/service/ticket"
)

const cacheSweepInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	presets, err := loadPresets(cfg.Interview.PresetsFile)
	if err != nil {
		log.Fatalf("failed to load presets: %v", err)
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	tickets := ticket.NewService(store, presets, cfg.Interview.TicketTTL)

	// Initialize AI service
	var aiService *ai.Service
	if cfg.AI.Enabled() {
		aiService, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without interviews - 请检查 Ark 模型相关环境变量")
		} else {
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，面试接口不可用")
	}

	// Initialize Speech service
	var speechService *speech.Service
	var audio *interview.AudioService
	if cfg.Speech.Enabled {
		speechService = speech.NewService(cfg.Speech.ServiceConfig())
		audio = interview.NewAudioService(interview.NewAudioCache(), speechService, cfg.Interview.PrefetchConcurrency)
		log.Println("Speech service initialized successfully")
	} else {
		log.Println("语音服务凭证未配置，面试以纯文本进行")
	}

	var orchestrator *interview.Orchestrator
	if aiService != nil {
		orchestrator = newOrchestrator(ctx, cfg, presets, store, tickets, aiService, speechService, audio)
	}

	router := handler.NewRouter(handler.Dependencies{
		Presets:        presets,
		Tickets:        tickets,
		Results:        store,
		Interviews:     orchestrator,
		Speech:         speechService,
		Audio:          audio,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)

	if orchestrator != nil {
		orchestrator.Wait()
	}
}

func newOrchestrator(
	ctx context.Context,
	cfg *config.Config,
	presets preset.Store,
	store repository.Store,
	tickets *ticket.Service,
	aiService *ai.Service,
	speechService *speech.Service,
	audio *interview.AudioService,
) *interview.Orchestrator {
	clock := interview.SystemClock()

	questions := interview.NewQuestionCache(
		question.NewSource(presets, aiService),
		cfg.Interview.QuestionCacheTTL,
		clock,
		cfg.Interview.QuestionCacheDedupe,
	)
	go questions.Run(ctx, cacheSweepInterval)

	var evaluator interview.Evaluator
	if cfg.AI.EvaluatorEnabled {
		evaluator = aiService
	}

	deps := interview.Dependencies{
		Tickets:   tickets,
		Questions: questions,
		Audio:     audio,
		Followups: aiService,
		Clarifier: aiService,
		Finalizer: interview.NewFinalizer(evaluator, store, presets, clock),
		Clock:     clock,
	}
	if speechService != nil {
		deps.Transcriber = speechService
	}

	return interview.NewOrchestrator(deps, interview.Config{FollowupBudget: cfg.Interview.FollowupBudget})
}

func loadPresets(path string) (preset.Store, error) {
	if path == "" {
		return preset.NewMemoryStore(preset.Seed()), nil
	}
	items, err := preset.LoadFile(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d presets from %s", len(items), path)
	return preset.NewMemoryStore(items), nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (repository.Store, error) {
	if !cfg.UseSQLite() {
		log.Println("DATABASE_PATH 未配置，使用内存存储")
		return memory.NewStore(), nil
	}
	store, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	log.Printf("using sqlite storage at %s", cfg.DatabasePath)
	return store, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Z Interview backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
