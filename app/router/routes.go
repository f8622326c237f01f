// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/audioform/audioform/app/dto"
	"github.com/audioform/audioform/app/handlers"
	"github.com/audioform/audioform/app/middleware"
	"github.com/audioform/audioform/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app               *fiber.App
	authHandler       handlers.AuthHandlerInterface
	surveyHandler     handlers.SurveyHandlerInterface
	responseHandler   handlers.ResponseHandlerInterface
	analyticsHandler  handlers.AnalyticsHandlerInterface
	collectionHandler handlers.EventCollectionHandlerInterface
	authMiddleware    *middleware.AuthMiddleware

	allowedOrigins []string
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	authHandler handlers.AuthHandlerInterface,
	surveyHandler handlers.SurveyHandlerInterface,
	responseHandler handlers.ResponseHandlerInterface,
	analyticsHandler handlers.AnalyticsHandlerInterface,
	collectionHandler handlers.EventCollectionHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
	allowedOrigins []string,
) Router {
	// Configure Fiber app. Body limit leaves headroom above the audio clip
	// cap for the multipart envelope.
	app := fiber.New(fiber.Config{
		AppName:      "Audioform API",
		ServerHeader: "Audioform",
		ErrorHandler: errorHandler,
		BodyLimit:    int(utils.MaxAudioSizeBytes) + 1024*1024,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:               app,
		authHandler:       authHandler,
		surveyHandler:     surveyHandler,
		responseHandler:   responseHandler,
		analyticsHandler:  analyticsHandler,
		collectionHandler: collectionHandler,
		authMiddleware:    authMiddleware,
		allowedOrigins:    allowedOrigins,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	// Global middleware
	r.setupMiddleware()

	// Prometheus scrape endpoint, outside the versioned API
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes
	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	// API documentation route (development only)
	if os.Getenv("APP_ENV") == "development" || os.Getenv("APP_ENV") == "local" {
		api.Get("/docs", r.getAPIDocumentation)
		log.Println("API documentation enabled for development")
	}

	// Apply general rate limiting to all API routes
	api.Use(limiter.New(limiter.Config{
		Max:        2000,            // Maximum 2000 requests
		Expiration: 1 * time.Minute, // Per minute
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP() // Rate limit by IP
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: func(c fiber.Ctx) bool {
			// Skip rate limiting for health checks
			return c.Path() == "/api/v1/health"
		},
	}))

	// Auth routes with stricter rate limiting
	auth := api.Group("/auth")

	// Apply stricter rate limiting to auth endpoints
	auth.Use(limiter.New(limiter.Config{
		Max:        20,              // Maximum 20 requests
		Expiration: 1 * time.Minute, // Per minute
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP() // Rate limit by IP
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
	}))

	// Auth endpoints
	auth.Post("/signup", r.authHandler.Signup)
	auth.Post("/login", r.authHandler.Login)
	auth.Post("/refresh", r.authHandler.Refresh)

	// Public demo endpoints, no account required
	demo := api.Group("/demo")
	demo.Post("/create", r.surveyHandler.CreateDemo)
	demo.Get("/:uuid", r.surveyHandler.GetDemo)

	// Public respondent endpoints. Respondents load the survey and its live
	// stats without an account.
	api.Post("/responses", r.responseHandler.Submit)
	api.Patch("/responses/:uuid/email", r.responseHandler.BackfillEmail)
	api.Post("/analytics/events", r.analyticsHandler.Track)
	api.Get("/events/:slug", r.collectionHandler.GetBySlug)
	api.Get("/surveys/:uuid", r.surveyHandler.Get)
	api.Get("/surveys/:uuid/stats", r.surveyHandler.Stats)

	// Creator endpoints behind JWT authentication
	authn := r.authMiddleware.Authenticate()

	surveys := api.Group("/surveys", authn)
	surveys.Post("/", r.surveyHandler.Create)
	surveys.Get("/", r.surveyHandler.List)
	surveys.Patch("/:uuid", r.surveyHandler.Update)
	surveys.Delete("/:uuid", r.surveyHandler.Delete)
	surveys.Get("/:uuid/responses", r.responseHandler.List)
	surveys.Get("/:uuid/responses/export", r.surveyHandler.Export)

	api.Get("/responses/:uuid/audio", authn, r.responseHandler.Audio)
	api.Post("/events", authn, r.collectionHandler.Create)
	api.Get("/analytics/funnels/:name", authn, r.analyticsHandler.Funnel)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// SetupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000, // 1 year
		HSTSExcludeSubdomains:     false,
		ContentSecurityPolicy:     "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; font-src 'self' https:; media-src 'self' blob: https:; connect-src 'self' https:; frame-ancestors 'none';",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "cross-origin",
		OriginAgentCluster:        "?1",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	// CORS middleware. Public survey pages are embedded on third-party
	// event sites, so the allowed origin list comes from configuration.
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: r.allowedOrigins,
		AllowMethods: []string{
			"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
			"X-Request-ID",
			"Cache-Control",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"Content-Disposition",
		},
		AllowCredentials: true,
		MaxAge:           utils.CORSMaxAge,
	}))

	// Compression middleware for performance
	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c fiber.Ctx) bool {
			// Skip compression for media and spreadsheet downloads
			contentType := c.Get("Content-Type")
			return contains(contentType, "audio/") ||
				contains(contentType, "multipart/") ||
				contains(c.Path(), "/audio") ||
				contains(c.Path(), "/export")
		},
	}))

	// Advanced logging middleware
	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","pid":"${pid}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","protocol":"${protocol}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent},"referer":"${referer}"}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			// Skip logging for health checks and metric scrapes
			return c.Path() == "/api/v1/health" || c.Path() == "/metrics"
		},
	}))

	// Prometheus request metrics
	r.app.Use(middleware.Metrics())

	// Recovery middleware with custom error handling
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			// Log panic with request context
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   "1.0.0",
			"service":   "audioform-api",
		},
	})
}

// API documentation endpoint
func (r *FiberRouter) getAPIDocumentation(c fiber.Ctx) error {
	docs := GetRouteDocumentation()
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "API documentation retrieved successfully",
		Data: fiber.Map{
			"title":       "Audioform API Documentation",
			"version":     "1.0.0",
			"description": "Voice-first survey API",
			"endpoints":   docs,
		},
	})
}

// Not found handler
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	requestID := c.Locals("requestid")

	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestID,
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	// Default error code
	code := fiber.StatusInternalServerError

	// Retrieve the custom status code if it's a fiber.*Error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	// Log the error
	log.Printf("Error %d: %v", code, err)

	// Get RequestID for tracing
	requestID := c.Locals("requestid")

	// Return JSON error response
	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: "An internal server error occurred",
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestID,
			},
		},
	})
}

// Helper functions

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// contains checks if a string contains a substring
func contains(str, substr string) bool {
	return strings.Contains(str, substr)
}

// GetRouteDocumentation returns API documentation
func GetRouteDocumentation() []map[string]any {
	return []map[string]any{
		{
			"method":      "POST",
			"path":        "/api/v1/demo/create",
			"description": "Create a 24-hour demo survey without an account",
			"parameters": map[string]any{
				"title":     "string (required) - Survey title",
				"questions": "array (required) - Question texts, at most 20",
				"email":     "string (optional) - Address for the expiry notice",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/demo/:uuid",
			"description": "Fetch a demo survey with its expiry phase and response count",
			"parameters": map[string]any{
				"uuid": "string (required) - Demo survey UUID in URL path",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/responses",
			"description": "Submit an audio answer to a survey question (multipart form)",
			"parameters": map[string]any{
				"survey_id":          "string (required) - Survey UUID",
				"question_id":        "string (required) - Question identifier",
				"audio":              "file (required) - Audio clip, 25MB max",
				"email":              "string (optional) - Respondent email",
				"respondent_session": "string (optional) - Session key for duplicate detection",
			},
		},
		{
			"method":      "PATCH",
			"path":        "/api/v1/responses/:uuid/email",
			"description": "Attach an email to a response submitted without one",
			"parameters": map[string]any{
				"uuid":  "string (required) - Response UUID in URL path",
				"email": "string (required) - Email address",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/analytics/events",
			"description": "Record a product analytics event",
			"parameters": map[string]any{
				"event_name": "string (required) - Event name, e.g. demo_page_view",
				"session_id": "string (required) - Anonymous session identifier",
				"properties": "object (optional) - Event properties",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/auth/signup",
			"description": "Register a creator account",
			"parameters": map[string]any{
				"email":            "string (required) - Email address",
				"password":         "string (required) - Password, 8 chars minimum",
				"confirm_password": "string (required) - Must match password",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/auth/login",
			"description": "Authenticate a creator with email and password",
			"parameters": map[string]any{
				"email":    "string (required) - Email address",
				"password": "string (required) - Password",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/surveys",
			"description": "Create a survey (authenticated)",
			"parameters": map[string]any{
				"title":      "string (required) - Survey title",
				"questions":  "array (required) - Question texts, at most 20",
				"expires_at": "string (optional) - RFC3339 expiry timestamp",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/surveys/:uuid/responses/export",
			"description": "Download survey responses as an XLSX workbook (authenticated)",
			"parameters": map[string]any{
				"uuid": "string (required) - Survey UUID in URL path",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/health",
			"description": "Health check endpoint",
			"parameters":  map[string]any{},
		},
	}
}
