package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fixspot/config"
	"fixspot/database"
	"fixspot/handlers"
	"fixspot/ingest"
	"fixspot/metrics"
	"fixspot/middleware"
	"fixspot/objstore"
	"fixspot/rabbitmq"
	"fixspot/stubvision"
	"fixspot/version"
	"fixspot/vision"
)

const serviceName = "fixspot"

func main() {
	cfg := config.Load()
	log.SetLevelFromString(cfg.LogLevel)

	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to create database connection: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.EnsureTables(ctx); err != nil {
		log.Fatalf("Failed to ensure tables: %v", err)
	}
	if cfg.SeedFile != "" {
		if err := db.SeedReports(ctx, cfg.SeedFile); err != nil {
			log.Fatalf("Failed to seed report catalog from %s: %v", cfg.SeedFile, err)
		}
	}

	var visionClient vision.Client
	if cfg.VisionAPIURL != "" {
		visionClient = vision.NewHTTPClient(cfg.VisionAPIURL, cfg.VisionAPIKey)
	} else {
		log.Warn("VISION_API_URL not set, using the stub vision client")
		visionClient = stubvision.NewClient()
	}
	log.Infof("Vision source: %s", visionClient.SourceName())

	objects := objstore.NewClient(cfg.ObjectStoreURL)
	ingestService := ingest.NewService(db, visionClient, objects)

	metrics.Register()

	// Upload events are optional at startup: the HTTP API stays useful
	// even when the broker is down, and the subscriber reconnects on its
	// own once started.
	var subscriber *rabbitmq.Subscriber
	subscriber, err = rabbitmq.NewSubscriber(cfg.GetAMQPURL(), cfg.RabbitMQExchange, cfg.RabbitMQQueue, cfg.RabbitMQKey)
	if err != nil {
		log.Warnf("Failed to initialize RabbitMQ subscriber: %v", err)
		log.Warn("Upload classification will be unavailable. Continuing without RabbitMQ...")
		subscriber = nil
	} else {
		subscriber.Start(ingestService.HandleEvent)
		log.Infof("RabbitMQ subscriber started: exchange=%s, queue=%s", cfg.RabbitMQExchange, cfg.RabbitMQQueue)
	}

	h := handlers.NewHandlers(db)
	router := setupRouter(cfg, h)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if subscriber != nil {
		if err := subscriber.Stop(); err != nil {
			log.Errorf("Failed to stop RabbitMQ subscriber: %v", err)
		}
	}

	log.Info("Server exited")
}

func setupRouter(cfg *config.Config, h *handlers.Handlers) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.CORS(cfg.AllowOrigin))

	router.GET("/reports", h.GetReports)
	router.GET("/submissions", h.GetSubmissions)
	router.GET("/submission/:id", h.GetSubmission)
	router.PATCH("/submission/:id", h.PatchSubmission)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": serviceName,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(200, version.Get(serviceName))
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
