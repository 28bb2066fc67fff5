package middleware

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// Rate Limit Tiers
const (
	// Checkout creation (Strict): each hit opens a gateway session
	limitStrict = rate.Limit(2)
	burstStrict = 5

	// General (Default)
	limitGeneral = rate.Limit(10)
	burstGeneral = 20

	// Verification polling from the post-payment page
	limitPolling = rate.Limit(20)
	burstPolling = 40

	// Gateway webhook deliveries arrive in bursts when Stripe drains its
	// retry queue; throttling them here would look like an outage to Stripe
	limitWebhook = rate.Limit(50)
	burstWebhook = 100

	// Internal / trusted services
	limitInternal = rate.Limit(100)
	burstInternal = 200
)

// visitor holds the rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.Mutex
)

// init starts the background cleanup routine.
func init() {
	go cleanupVisitors()
}

// getVisitor retrieves or creates a rate limiter for the given bucket key.
func getVisitor(key string, r rate.Limit, b int) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	v, exists := visitors[key]
	if !exists {
		limiter := rate.NewLimiter(r, b)
		visitors[key] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupVisitors removes old entries from the visitors map to prevent memory leaks.
func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit throttles requests per client identity and tier, so a burst of
// checkout submissions cannot starve verification polling from the same IP.
func RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			limit, burst, tier := resolveRateTier(r)

			var identity string
			if deviceID := r.Header.Get("X-Device-ID"); deviceID != "" {
				identity = "device:" + deviceID
			} else {
				ip, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					ip = r.RemoteAddr
				}
				identity = "ip:" + ip
			}

			key := fmt.Sprintf("%s:%s", identity, tier)

			limiter := getVisitor(key, limit, burst)
			if !limiter.Allow() {
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"success": false,
					"error":   http.StatusText(http.StatusTooManyRequests),
				})
			}

			return next(c)
		}
	}
}

// resolveRateTier determines which rate limit policy applies to the request.
func resolveRateTier(r *http.Request) (rate.Limit, int, string) {
	internalKey := os.Getenv("INTERNAL_SECRET_KEY")
	if internalKey != "" && r.Header.Get("X-Service-Auth") == internalKey {
		return limitInternal, burstInternal, "internal"
	}

	// Opening a checkout session reserves gateway resources.
	if strings.HasSuffix(r.URL.Path, "/create-checkout-session") {
		return limitStrict, burstStrict, "strict"
	}

	// The post-payment page polls until the webhook lands.
	if strings.HasSuffix(r.URL.Path, "/verify-session") {
		return limitPolling, burstPolling, "polling"
	}

	if strings.HasSuffix(r.URL.Path, "/webhook") {
		return limitWebhook, burstWebhook, "webhook"
	}

	return limitGeneral, burstGeneral, "general"
}
