// Package server exposes the HTTP surface: credits, entitlements,
// usage, metered runs, plans, subscriptions, and payment webhooks.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prompthive/costlens/internal/apikey"
	apikeydomain "github.com/prompthive/costlens/internal/apikey/domain"
	"github.com/prompthive/costlens/internal/cache"
	"github.com/prompthive/costlens/internal/clock"
	"github.com/prompthive/costlens/internal/config"
	"github.com/prompthive/costlens/internal/credit"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	"github.com/prompthive/costlens/internal/entitlement"
	entitlementdomain "github.com/prompthive/costlens/internal/entitlement/domain"
	"github.com/prompthive/costlens/internal/observability"
	obsmiddleware "github.com/prompthive/costlens/internal/observability/logger"
	obsmetrics "github.com/prompthive/costlens/internal/observability/metrics"
	obstracing "github.com/prompthive/costlens/internal/observability/tracing"
	"github.com/prompthive/costlens/internal/payment"
	paymentdomain "github.com/prompthive/costlens/internal/payment/domain"
	"github.com/prompthive/costlens/internal/plan"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	"github.com/prompthive/costlens/internal/ratelimit"
	"github.com/prompthive/costlens/internal/subscription"
	subdomain "github.com/prompthive/costlens/internal/subscription/domain"
	"github.com/prompthive/costlens/internal/usage"
	usagedomain "github.com/prompthive/costlens/internal/usage/domain"
	"github.com/prompthive/costlens/internal/user"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	cache.Module,
	apikey.Module,
	plan.Module,
	user.Module,
	credit.Module,
	entitlement.Module,
	usage.Module,
	subscription.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	apiKeySvc      apikeydomain.Service
	planSvc        plandomain.Service
	userSvc        userdomain.Service
	creditSvc      creditdomain.Service
	entitlementSvc entitlementdomain.Service
	usageSvc       usagedomain.Service
	subSvc         subdomain.Service
	paymentSvc     paymentdomain.Service
	requestLimiter *ratelimit.RequestLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	APIKeySvc      apikeydomain.Service
	PlanSvc        plandomain.Service
	UserSvc        userdomain.Service
	CreditSvc      creditdomain.Service
	EntitlementSvc entitlementdomain.Service
	UsageSvc       usagedomain.Service
	SubSvc         subdomain.Service
	PaymentSvc     paymentdomain.Service
	RequestLimiter *ratelimit.RequestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		log:            p.Log.Named("server"),
		genID:          p.GenID,
		clock:          p.Clock,
		apiKeySvc:      p.APIKeySvc,
		planSvc:        p.PlanSvc,
		userSvc:        p.UserSvc,
		creditSvc:      p.CreditSvc,
		entitlementSvc: p.EntitlementSvc,
		usageSvc:       p.UsageSvc,
		subSvc:         p.SubSvc,
		paymentSvc:     p.PaymentSvc,
		requestLimiter: p.RequestLimiter,
	}
	svc.registerRoutes()
	return svc
}

func (s *Server) registerRoutes() {
	r := s.engine

	r.POST("/api/signup", s.Signup)
	r.POST("/api/webhooks/stripe", s.StripeWebhook)

	api := r.Group("/api", s.APIKeyRequired())
	{
		api.GET("/credits", s.GetCreditUsage)
		api.GET("/credits/history", s.GetCreditHistory)
		api.POST("/credits/checkout", s.CreateCheckout)

		api.GET("/entitlements/spend", s.CheckSpendLimit)
		api.GET("/entitlements/features/:feature", s.CheckEntitlement)

		api.POST("/usage", s.RateLimited(), s.TrackUsage)
		api.GET("/usage", s.GetUsageSummary)
		api.GET("/usage/:feature", s.GetFeatureUsage)

		api.POST("/runs", s.RateLimited(), s.RunMetered)

		api.GET("/plans", s.ListPlans)
		api.GET("/plans/:type", s.GetPlan)

		api.GET("/subscription", s.GetSubscription)
		api.POST("/subscription/cancel", s.CancelSubscription)

		api.GET("/keys", s.ListAPIKeys)
		api.POST("/keys", s.CreateAPIKey)
		api.DELETE("/keys/:id", s.RevokeAPIKey)
	}

	admin := r.Group("/admin", s.APIKeyRequired(), s.AdminRequired())
	{
		admin.PUT("/plans", s.UpsertPlan)
		admin.POST("/credits/grant", s.GrantCredits)
		admin.GET("/users/:id", s.GetUser)
		admin.POST("/users/:id/reconcile", s.ReconcileUser)
		admin.POST("/users/:id/reset", s.ResetUserCredits)
	}
}
