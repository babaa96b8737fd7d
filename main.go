package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threatsense/agents"
	"threatsense/analyst"
	"threatsense/config"
	"threatsense/database"
	"threatsense/gemini"
	"threatsense/handlers"
	"threatsense/llm"
	"threatsense/metrics"
	"threatsense/middleware"
	"threatsense/openai"
	"threatsense/proxy"
	"threatsense/rabbitmq"
	"threatsense/service"
	"threatsense/stubllm"
	"threatsense/video"
	"threatsense/vision"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

const databaseConnectTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if level > log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.Register()

	// Vision tier
	var table *proxy.Table
	if cfg.ProxyTablePath != "" {
		table, err = proxy.LoadTable(cfg.ProxyTablePath)
		if err != nil {
			log.Fatalf("Failed to load proxy table: %v", err)
		}
		for _, e := range table.Entries() {
			log.Infof("Proxy tokens for %s: %v", e.Classification, e.Tokens)
		}
	}
	visionAgent := vision.NewAgent(
		vision.NewClassifierClient(cfg.ClassifierURL, proxy.TopK, cfg.VisionTimeout),
		vision.NewCounterClient(cfg.PersonCounterURL, cfg.VisionTimeout),
		table,
	)

	// Thinking tier
	thinking := analyst.New(newLLMClient(cfg), cfg.FrameMaxDimension)
	if !thinking.Available() {
		log.Warnf("No API key for LLM provider %s, thinking tier disabled", cfg.LLMProvider)
	}

	manager := agents.NewManager(visionAgent, thinking)
	processor := video.NewProcessor(video.FFmpegOpener{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
	}, manager, thinking)

	// Audit log and event publishing are optional
	var store service.Store
	db, err := connectDatabase(cfg)
	if err != nil {
		log.Warnf("Audit log disabled: %v", err)
	} else {
		defer db.Close()
		store = db
	}

	var publisher service.EventPublisher
	if cfg.PublishingEnabled() {
		p, err := rabbitmq.NewPublisher(cfg.GetRabbitMQURL(), cfg.RabbitMQExchange, cfg.RabbitMQRoutingKey)
		if err != nil {
			log.Warnf("Event publishing disabled: %v", err)
		} else {
			defer p.Close()
			publisher = p
		}
	}

	svc := service.NewService(manager, processor, store, publisher, service.Options{
		SampleRate: cfg.VideoSampleRate,
		GuestName:  cfg.GuestName,
		GuestEmail: cfg.GuestEmail,
		LogsLimit:  cfg.LogsLimit,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	go limiter.Cleanup(cleanupCtx, time.Minute)

	router := handlers.NewRouter(
		handlers.NewHandlers(svc, cfg.MaxUploadBytes, cfg.UploadDir),
		limiter,
		cfg.CORSOrigins,
	)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Infof("Starting ThreatSense server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

// newLLMClient returns nil when the selected provider has no API key
func newLLMClient(cfg *config.Config) llm.Client {
	if cfg.LLMProvider == config.ProviderStub {
		return stubllm.NewClient()
	}

	key := cfg.LLMAPIKey()
	if key == "" {
		return nil
	}
	if cfg.LLMProvider == config.ProviderOpenAI {
		return openai.NewClient(key, cfg.OpenAIModel, cfg.LLMTimeout)
	}
	return gemini.NewClient(key, cfg.GeminiModel, cfg.LLMTimeout)
}

func connectDatabase(cfg *config.Config) (*database.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), databaseConnectTimeout)
	defer cancel()

	db, err := database.NewDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
