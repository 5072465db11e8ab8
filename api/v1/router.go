package v1

import (
	"time"

	"go_certmgr/api/v1/auth"
	"go_certmgr/api/v1/certificates"
	"go_certmgr/api/v1/middleware"
	"go_certmgr/internal/cache"
	"go_certmgr/internal/certificate"
	"go_certmgr/internal/config"
	"go_certmgr/internal/grades"
	"go_certmgr/internal/httpx"
	"go_certmgr/internal/ratelimit"
	"go_certmgr/internal/render"
	"go_certmgr/internal/ws"
	"go_certmgr/internal/xqueue"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, db *gorm.DB, cfg *config.Config) error {
	queue := xqueue.NewClient(cfg.XQueue.URL, cfg.XQueue.QueueName,
		time.Duration(cfg.XQueue.TimeoutSec)*time.Second)
	grader := grades.NewDBGrader(db)

	certSvc := certificate.NewService(db, queue, grader, cfg.XQueue.CallbackURL)
	certSvc.SetEventPublisher(ws.NewPublisher())
	exampleSvc := certificate.NewExampleService(db, queue, cfg.XQueue.CallbackURL)

	var store ratelimit.Store
	if cache.Client != nil {
		store = ratelimit.NewRedisStore(cache.Client)
	} else {
		store = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.New(store, cfg.RateLimit.Threshold,
		time.Duration(cfg.RateLimit.WindowSec)*time.Second)

	renderer, err := render.NewCertificateRenderer(db)
	if err != nil {
		return err
	}

	certsHandler := certificates.NewHandler(db, certSvc, exampleSvc, limiter, renderer)

	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(db, cfg))
		}

		certGroup := v1.Group("/certificates")
		{
			// Worker callbacks authenticate with the per-job access key
			// carried in the payload, not with a session
			certGroup.POST("/update", certsHandler.UpdateCertificate)
			certGroup.POST("/update-example", certsHandler.UpdateExampleCertificate)

			// The request and view routes answer anonymous callers with
			// a sentinel or the invalid page instead of a 401
			certGroup.POST("/request", middleware.AuthOptional(), certsHandler.Request)
			certGroup.GET("/html", middleware.AuthOptional(), certsHandler.View)

			protected := certGroup.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.GET("/status", certsHandler.Status)
				protected.POST("/regenerate", certsHandler.Regenerate)
				protected.POST("/delete", certsHandler.Delete)
				protected.POST("/examples", certsHandler.StartExample)
				protected.GET("/examples", certsHandler.ListExamples)
			}
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)
		}
	}

	// Socket.IO status feed for the operator dashboard
	if ws.Server != nil {
		handler := ws.WrapWithAuth(ws.Server)
		r.GET("/socket.io/*any", gin.WrapH(handler))
		r.POST("/socket.io/*any", gin.WrapH(handler))
	}

	return nil
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	uid, _ := c.Get("uid")
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"uid":      uid,
		"username": username,
		"role":     role,
	})
}
