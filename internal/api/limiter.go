package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiter hands out one token bucket per client IP. A bucket holds
// max tokens and refills the whole amount over window.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	max     int
	window  time.Duration
	every   rate.Limit
	stop    chan struct{}
	once    sync.Once
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(max int, window time.Duration) *clientLimiter {
	cl := &clientLimiter{
		clients: make(map[string]*clientBucket),
		max:     max,
		window:  window,
		every:   rate.Every(window / time.Duration(max)),
		stop:    make(chan struct{}),
	}
	go cl.cleanup()
	return cl
}

// allow takes a token for key. When none is left it returns how long the
// client has to wait for the next one.
func (cl *clientLimiter) allow(key string) (bool, time.Duration) {
	now := time.Now()

	cl.mu.Lock()
	b, ok := cl.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(cl.every, cl.max)}
		cl.clients[key] = b
	}
	b.lastSeen = now
	cl.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return true, 0
	}

	r := b.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

// remaining reports the whole tokens left for key
func (cl *clientLimiter) remaining(key string) int {
	cl.mu.Lock()
	b, ok := cl.clients[key]
	cl.mu.Unlock()
	if !ok {
		return cl.max
	}
	return int(math.Max(0, math.Floor(b.limiter.Tokens())))
}

// cleanup forgets clients idle for a full window; their bucket is full again by then
func (cl *clientLimiter) cleanup() {
	ticker := time.NewTicker(cl.window)
	defer ticker.Stop()

	for {
		select {
		case <-cl.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-cl.window)
			cl.mu.Lock()
			for key, b := range cl.clients {
				if b.lastSeen.Before(cutoff) {
					delete(cl.clients, key)
				}
			}
			cl.mu.Unlock()
		}
	}
}

// Stop ends the cleanup goroutine
func (cl *clientLimiter) Stop() {
	cl.once.Do(func() { close(cl.stop) })
}

// rateLimitMiddleware rejects clients that spent their budget with 429
func rateLimitMiddleware(cl *clientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		ok, wait := cl.allow(key)

		c.Header("RateLimit-Limit", strconv.Itoa(cl.max))
		c.Header("RateLimit-Remaining", strconv.Itoa(cl.remaining(key)))

		if !ok {
			seconds := int(math.Ceil(wait.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.Header("RateLimit-Reset", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please try again later.",
			})
			return
		}

		c.Next()
	}
}
