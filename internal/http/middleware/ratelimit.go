package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientInfo struct {
	limiter *rate.Limiter
	last    time.Time
}

// SimpleRateLimit is the in-process limiter used when Redis is not
// configured: a token bucket per client refilling maxRequests per window.
func SimpleRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*clientInfo)
		every   = rate.Every(window / time.Duration(max(maxRequests, 1)))
	)

	return func(c *gin.Context) {
		key := limitKey(c)
		now := time.Now()

		mu.Lock()
		ci, ok := clients[key]
		if !ok {
			ci = &clientInfo{limiter: rate.NewLimiter(every, maxRequests)}
			clients[key] = ci
		}
		ci.last = now
		// forget idle clients so the map does not grow without bound
		for k, other := range clients {
			if now.Sub(other.last) > 2*window {
				delete(clients, k)
			}
		}
		allowed := ci.limiter.AllowN(now, 1)
		mu.Unlock()

		if !allowed {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// limitKey prefers the authenticated user over the client IP.
func limitKey(c *gin.Context) string {
	if claims, ok := ClaimsFrom(c); ok {
		return "user:" + claims.UserID.String()
	}
	return "ip:" + c.ClientIP()
}
