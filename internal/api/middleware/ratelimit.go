package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jimmy058910/replitballgame-sub015/pkg/utils"
)

// staleLimiterAge is how long an idle client keeps its bucket before the
// sweep drops it.
const staleLimiterAge = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit bounds a route per client IP with a token bucket. Used on the
// admin force-start endpoint so a stuck script cannot spin up matches in a
// loop.
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	clients := make(map[string]*clientLimiter)
	lastSweep := time.Now()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(lastSweep) > staleLimiterAge {
			for key, cl := range clients {
				if now.Sub(cl.lastSeen) > staleLimiterAge {
					delete(clients, key)
				}
			}
			lastSweep = now
		}
		cl, ok := clients[ip]
		if !ok {
			cl = &clientLimiter{limiter: rate.NewLimiter(rps, burst)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		mu.Unlock()

		if !cl.limiter.Allow() {
			utils.SendError(c, http.StatusTooManyRequests,
				utils.NewAppError(utils.ErrCodeRateLimited, "Too many requests, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}
