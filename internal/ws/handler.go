package ws

import (
	"net/http"
	"strings"

	"screentime/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HandleUsage upgrades GET /ws/usage. The token comes from the query string
// or a bearer Authorization header.
func HandleUsage(hub *Hub, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required", "redirect": "/login"})
			return
		}

		claims, err := service.ParseJWT(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "redirect": "/login"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("usage feed upgrade failed", "error", err)
			return
		}

		client := NewClient(claims.UserID, claims.IsAdmin(), conn, hub)
		go client.Run()
	}
}
