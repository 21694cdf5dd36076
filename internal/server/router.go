// Package server assembles the HTTP surface of the API.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "convertax/internal/docs" // registers the swagger spec
	"convertax/internal/handlers"
	"convertax/internal/middleware"
	"convertax/internal/models"
	"convertax/internal/services"
)

// Throttling selects the limiter and budgets applied to incoming requests.
// Budgets cover the auth, user and withdrawal routes. Investment routes,
// health and operator endpoints are never throttled.
type Throttling struct {
	Limiter middleware.Limiter
	Rules   []middleware.Rule
}

// DefaultThrottling returns the production budgets backed by limiter.
func DefaultThrottling(limiter middleware.Limiter) *Throttling {
	return &Throttling{
		Limiter: limiter,
		Rules:   []middleware.Rule{middleware.ThrottleShort, middleware.ThrottleLong},
	}
}

// chain returns the middleware enforcing t, or nil when throttling is off.
func (t *Throttling) chain() []gin.HandlerFunc {
	if t == nil || t.Limiter == nil || len(t.Rules) == 0 {
		return nil
	}
	return []gin.HandlerFunc{middleware.Throttle(t.Limiter, t.Rules...)}
}

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Users       services.UserServicer
	Audit       services.AuditServicer
	Investments services.InvestmentServicer
	Withdrawals services.WithdrawalServicer
	Tokens      *middleware.TokenIssuer
	Outbox      handlers.Dispatcher
	Health      map[string]handlers.Pinger
	OpsAPIKey   string
	// Throttling is optional; nil disables rate limiting.
	Throttling *Throttling
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	authHandler := handlers.NewAuthHandler(d.Users, d.Audit, d.Tokens)
	investmentHandler := handlers.NewInvestmentHandler(d.Investments, d.Audit)
	withdrawalHandler := handlers.NewWithdrawalHandler(d.Withdrawals, d.Audit)
	healthHandler := handlers.NewHealthHandler(d.Health)
	opsHandler := handlers.NewOpsHandler(d.Outbox)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(CORS())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	throttle := d.Throttling.chain()

	api := router.Group("/api")
	api.GET("/health", healthHandler.Health)

	v1 := api.Group("/v1")

	auth := v1.Group("/auth", throttle...)
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/signin", authHandler.Signin)

	ops := v1.Group("/ops")
	ops.Use(middleware.APIKeyAuth(d.OpsAPIKey))
	ops.POST("/outbox/dispatch", opsHandler.DispatchOutbox)

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(d.Tokens))

	user := protected.Group("/user", throttle...)
	user.GET("/profile", authHandler.GetProfile)
	user.GET("/all", middleware.RequireRole(models.RoleAdmin), authHandler.ListUsers)

	investments := protected.Group("/investments")
	investments.POST("", investmentHandler.CreateInvestment)
	investments.GET("", investmentHandler.ListInvestments)
	investments.GET("/:id", investmentHandler.GetInvestment)

	withdrawals := protected.Group("/withdrawals", throttle...)
	withdrawals.POST("", withdrawalHandler.Withdraw)

	return router
}

// CORS allows browser clients from any origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, "+middleware.RequestIDHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", middleware.RequestIDHeader+", Retry-After")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
