package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"artx-auction/services/bidding/helpers"
	"artx-auction/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if actor := c.GetString(helpers.ActorIDKey); actor != "" {
		fields["actor_id"] = actor
	}
	utils.Info("HTTP Request", fields)
}

// ActorAuth validates the bearer access token and stores its subject and
// role claims under helpers.ActorIDKey and helpers.ActorRoleKey
func ActorAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			utils.JSONError(c, http.StatusUnauthorized, errors.New("missing bearer token"), "authentication required")
			return
		}

		actorID, role, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			utils.JSONError(c, http.StatusUnauthorized, err, "invalid token")
			utils.Warn("ActorAuth: rejected token", map[string]any{"path": c.Request.URL.Path, "error": err.Error()})
			return
		}

		c.Set(helpers.ActorIDKey, actorID)
		c.Set(helpers.ActorRoleKey, role)
		c.Next()
	}
}
