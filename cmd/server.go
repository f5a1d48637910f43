package cmd

import (
	"log"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"fermata/config"
	"fermata/handlers"
	"fermata/middleware"
	"fermata/services"
	"fermata/websocket"
)

// StartWebServer starts the web server
func StartWebServer(port int, configPath string) {
	// Set production mode if not specified
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.NewStore(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	settings := cfg.Snapshot()

	if err := os.MkdirAll(settings.CachePath, 0755); err != nil {
		log.Fatalf("Failed to create cache directory: %v", err)
	}

	// Initialize services
	hub := websocket.NewHub()
	go hub.Run()

	cache := services.NewCacheStore(settings.CachePath)
	backend := services.NewFFmpegBackend(settings.FFmpegPath)
	pipeline := services.NewEncodingPipeline(cache, backend)
	monitor := services.NewSystemMonitor()
	queue := services.NewTaskQueue()
	library := services.NewLibraryService(cfg)

	scheduler := services.NewScheduler(queue, pipeline, cache, monitor, cfg,
		services.WithHub(hub))
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize handlers
	transcodeHandler := handlers.NewTranscodeHandler(scheduler, library)
	libraryHandler := handlers.NewLibraryHandler(library)
	fileHandler := handlers.NewFileHandler(cfg, pipeline)
	healthHandler := handlers.NewHealthHandler(cfg)
	settingsHandler := handlers.NewSettingsHandler(cfg)
	wsHandler := handlers.NewWebSocketHandler(hub)

	// Setup router
	r := gin.Default()

	// Apply middleware
	r.Use(middleware.CORS(settings.CORSOrigins))
	r.Use(middleware.Logging())
	r.Use(middleware.Security())

	// Setup routes
	setupRoutes(r, transcodeHandler, libraryHandler, fileHandler, healthHandler, settingsHandler, wsHandler)

	// Start server
	portStr := strconv.Itoa(port)
	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		portStr = serverPort
	}

	log.Printf("Fermata web server starting on port %s", portStr)
	log.Printf("Library: %s", settings.LibraryPath)
	log.Printf("Transcode cache: %s", settings.CachePath)
	if err := r.Run(":" + portStr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, transcodeHandler *handlers.TranscodeHandler, libraryHandler *handlers.LibraryHandler, fileHandler *handlers.FileHandler, healthHandler *handlers.HealthHandler, settingsHandler *handlers.SettingsHandler, wsHandler *handlers.WebSocketHandler) {
	// Health check endpoint
	r.GET("/health", healthHandler.HealthCheck)

	// API routes group
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", healthHandler.APIStatus)

		// Library browsing endpoints
		apiGroup.GET("/library", libraryHandler.ListBooks)
		apiGroup.GET("/library/:bookId", libraryHandler.GetBook)

		// Transcode scheduling endpoints
		transcodeGroup := apiGroup.Group("/transcode")
		{
			// Trigger background transcoding
			transcodeGroup.POST("/book/:bookId", transcodeHandler.TriggerBook)
			transcodeGroup.POST("/position", transcodeHandler.TriggerPosition)

			// Inspect and cancel
			transcodeGroup.GET("/status", transcodeHandler.Status)
			transcodeGroup.DELETE("", transcodeHandler.Cancel)
		}

		// WebSocket endpoint for real-time transcode events
		apiGroup.GET("/ws/transcode", wsHandler.HandleAllEvents)

		// File streaming endpoint
		apiGroup.GET("/files/stream/*filepath", fileHandler.StreamFile)

		// Settings endpoints
		apiGroup.GET("/settings", settingsHandler.GetSettings)
		apiGroup.POST("/settings", settingsHandler.UpdateSettings)
	}
}
