// internal/middleware/cors.go
package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the frontend origin plus local development hosts. The
// Stripe-Signature header is not listed: webhooks come from Stripe's
// servers, not a browser.
func CORS(frontendOrigin string) gin.HandlerFunc {
	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if frontendOrigin != "" {
		origins = append(origins, frontendOrigin)
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"X-Total-Count", "X-Page", "X-Per-Page", "X-Total-Pages"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
