package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/veritas/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/veritas/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/veritas/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/veritas/internal/database"
	"github.com/saturnino-fabrica-de-software/veritas/internal/reviewer"
	"github.com/saturnino-fabrica-de-software/veritas/internal/ws"
)

// BackgroundWorker runs until its context is cancelled.
type BackgroundWorker interface {
	Run(ctx context.Context)
}

type Dependencies struct {
	Verifications handler.VerificationService
	Credentials   handler.CredentialService
	Tokens        *reviewer.TokenService
	DB            database.Pinger
	Metrics       http.Handler
	RateLimit     middleware.RateLimiterConfig
	Workers       []BackgroundWorker
	// Feed is optional; when set, reviewers can subscribe over WebSocket.
	Feed *ws.Hub
}

type Router struct {
	app          *fiber.App
	logger       *slog.Logger
	deps         *Dependencies
	rateLimiter  *middleware.RateLimiter
	cancelWorker context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Veritas API",
		BodyLimit:    1 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger, "/health", "/ready", "/metrics"))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var db database.Pinger
	if r.deps != nil {
		db = r.deps.DB
	}
	healthHandler := handler.NewHealthHandler(db, r.logger)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil {
		return
	}

	if r.deps.Metrics != nil {
		r.app.Get("/metrics", adaptor.HTTPHandler(r.deps.Metrics))
	}

	workers := append([]BackgroundWorker{}, r.deps.Workers...)
	if r.deps.Feed != nil {
		workers = append(workers, r.deps.Feed)
	}
	if len(workers) > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancelWorker = cancel
		for _, w := range workers {
			go w.Run(ctx)
		}
	}

	v1 := r.app.Group("/v1")

	reviewerAuth := middleware.ReviewerAuthDependencies{
		Tokens: r.deps.Tokens,
		Logger: r.logger,
	}

	// Verification routes
	verificationHandler := handler.NewVerificationHandler(r.deps.Verifications, r.logger)
	r.rateLimiter = middleware.NewRateLimiter(r.deps.RateLimit)

	v1.Post("/verifications", r.rateLimiter.Handler(), verificationHandler.Submit)
	v1.Get("/verifications/:id", verificationHandler.Get)
	v1.Post("/verifications/:id/review",
		middleware.ReviewerAuth(reviewerAuth, reviewer.RoleReviewer, reviewer.RoleSupervisor),
		verificationHandler.Review,
	)

	if r.deps.Feed != nil {
		v1.Get("/reviews/feed",
			ws.UpgradeMiddleware(),
			middleware.ReviewerAuth(reviewerAuth, reviewer.RoleReviewer, reviewer.RoleSupervisor),
			ws.Handler(r.deps.Feed),
		)
	}

	// Credential routes
	credentialHandler := handler.NewCredentialHandler(r.deps.Credentials, r.logger)

	v1.Get("/subjects/:subject_id/credential", credentialHandler.GetBySubject)
	v1.Post("/credentials/:request_id/revoke",
		middleware.ReviewerAuth(reviewerAuth, reviewer.RoleSupervisor),
		credentialHandler.Revoke,
	)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	if r.cancelWorker != nil {
		r.cancelWorker()
	}

	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
