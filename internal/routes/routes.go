package routes

import (
	"net/http"

	"github.com/01moynul/taptosell-orders/internal/auth"
	"github.com/01moynul/taptosell-orders/internal/handlers"
	"github.com/01moynul/taptosell-orders/internal/middleware"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows the configured storefront origin to call the API.
func CORSMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Allow only the configured frontend
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)

		// 2. Allow standard security credentials
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		// 3. Allow the headers we actually use ("Authorization" for JWT tokens)
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")

		// 4. Allow the HTTP methods we use in our API
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		// 5. Answer the preflight OPTIONS request with "204 No Content"
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func SetupRouter(h *handlers.Handlers, corsOrigin string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// --- APPLY THE CORS GUARD ---
	// This must be the very first thing the router uses
	router.Use(CORSMiddleware(corsOrigin))

	v1 := router.Group("/v1")
	{
		// --- Ping Route (Public) ---
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong!"})
		})

		// --- Checkout (Guest or Logged In) ---
		v1.POST("/orders", middleware.OptionalAuth(h.Tokens), h.CreateOrder)

		// --- Protected Routes (Login Required) ---
		authed := v1.Group("/")
		authed.Use(middleware.AuthMiddleware(h.Tokens))
		{
			// Owner or staff; checked per order in the handler
			authed.GET("/orders/:id", h.GetOrder)
			authed.POST("/orders/:id/cancel", h.CancelOrder)
			authed.POST("/orders/:id/payment-intent", h.CreatePaymentIntent)
			authed.POST("/orders/:id/payment-intent/confirm", h.ConfirmPaymentIntent)
			authed.POST("/orders/:id/returns", h.CreateReturn)
			authed.GET("/orders/:id/returns", h.ListReturns)
			authed.GET("/refunds/order/:orderId", h.ListRefunds)

			// --- Seller/Admin Routes ---
			staff := authed.Group("/")
			staff.Use(middleware.RequireRole(auth.RoleSeller, auth.RoleAdmin))
			{
				staff.PUT("/orders/:id/status", h.UpdateOrderStatus)
				staff.PUT("/returns/:id/status", h.UpdateReturnStatus)
				staff.POST("/refunds/:orderId", h.RefundOrder)
				staff.POST("/stock-operations", h.ApplyStockOperation)
			}
		}
	}

	return router
}
