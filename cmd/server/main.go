package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gwi.com/drawing-analyzer/internal/annotation"
	"gwi.com/drawing-analyzer/internal/api"
	"gwi.com/drawing-analyzer/internal/canvas"
	"gwi.com/drawing-analyzer/internal/chat"
	"gwi.com/drawing-analyzer/internal/config"
	"gwi.com/drawing-analyzer/internal/core"
	"gwi.com/drawing-analyzer/internal/imaging"
	"gwi.com/drawing-analyzer/internal/store"
)

func newLogger(level string) (*zap.Logger, error) {
	if level == "DEBUG" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	exportPath := flag.String("export", "", "Render the saved drawing with its boxes to this PNG file and exit")
	resetFlag := flag.Bool("reset", false, "Clear the saved drawing and chat history and exit")
	flag.Parse()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	if *resetFlag {
		if err := resetSession(dbStore, logger); err != nil {
			logger.Fatal("reset failed", zap.Error(err))
		}
		return
	}

	annotations := annotation.NewStore(dbStore, logger.Named("annotation"))

	if *exportPath != "" {
		if err := exportDrawing(*exportPath, annotations.Snapshot()); err != nil {
			logger.Fatal("export failed", zap.Error(err))
		}
		logger.Info("drawing exported", zap.String("path", *exportPath))
		return
	}

	transcript := chat.NewTranscript(dbStore, logger.Named("chat"))
	settings := config.NewSettingsService(dbStore, config.DefaultSettings(cfg), logger.Named("settings"))

	llmService := core.NewLLMService(cfg, settings, logger.Named("llm"))
	defer llmService.Close()

	detection := core.NewDetectionService(annotations, transcript, llmService, cfg.MaxVisionEdge, cfg.LLMTimeout, logger.Named("detection"))
	conversation := core.NewConversationService(transcript, llmService, cfg.LLMTimeout, logger.Named("conversation"))
	chatService := core.NewChatService(annotations, transcript, detection, conversation, logger)
	controller := canvas.NewController(annotations, logger.Named("canvas"))

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, annotations, controller, settings, logger.Named("api"))
	router := api.NewRouter(apiHandler)

	// Loopback only: the session has no authentication.
	serverAddr := fmt.Sprintf("127.0.0.1:%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 15*time.Second, // chat requests wait on the model
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exiting gracefully")
}

func exportDrawing(path string, state annotation.State) error {
	if !state.HasImage() {
		return annotation.ErrNoImage
	}
	src, err := imaging.Decode(state.ImageRef)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := imaging.Render(f, src, state.Boxes); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// resetSession drops the saved drawing and transcript. Settings survive.
func resetSession(db *store.SQLiteStore, logger *zap.Logger) error {
	slots, err := db.ListSlots()
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot.Name != annotation.SlotName && slot.Name != chat.SlotName {
			continue
		}
		if err := db.DeleteSlot(slot.Name); err != nil {
			return err
		}
		logger.Info("slot cleared", zap.String("slot", slot.Name), zap.Time("updated_at", slot.UpdatedAt))
	}
	return nil
}
