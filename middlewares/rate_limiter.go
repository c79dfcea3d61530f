package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joy095/treasury/logger"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginmiddleware "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// rateKey identifies the caller: the authenticated admin when there is one, else the client IP.
func rateKey(c *gin.Context) string {
	if sub := c.GetString("sub"); sub != "" {
		return "admin:" + sub
	}
	return "ip:" + c.ClientIP()
}

// createStore returns a Redis-backed store shared by all replicas, or a per-process memory
// store when rdb is nil.
func createStore(rdb *redis.Client, routeID string, period time.Duration) (limiter.Store, error) {
	options := limiter.StoreOptions{
		Prefix:          fmt.Sprintf("rate_limiter:%s", routeID),
		MaxRetry:        3,
		CleanUpInterval: period,
	}

	if rdb == nil {
		return memorystore.NewStoreWithOptions(options), nil
	}

	store, err := redisstore.NewStoreWithOptions(rdb, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis store for route %s: %w", routeID, err)
	}
	return store, nil
}

// ParseCustomRate allows formats like "10-2m", "30-20m", "5-1h", "20-10s", etc.
func ParseCustomRate(rateStr string) (limiter.Rate, error) {
	parts := strings.Split(rateStr, "-")
	if len(parts) != 2 {
		return limiter.Rate{}, fmt.Errorf("invalid rate format: %s", rateStr)
	}

	limit, err := strconv.Atoi(parts[0])
	if err != nil || limit <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid limit: %s", parts[0])
	}

	durationStr := parts[1]
	var unit time.Duration
	switch {
	case strings.HasSuffix(durationStr, "s"):
		unit = time.Second
	case strings.HasSuffix(durationStr, "m"):
		unit = time.Minute
	case strings.HasSuffix(durationStr, "h"):
		unit = time.Hour
	default:
		return limiter.Rate{}, fmt.Errorf("unsupported period: %s", durationStr)
	}

	n, err := strconv.Atoi(durationStr[:len(durationStr)-1])
	if err != nil || n <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid duration: %s", durationStr)
	}

	return limiter.Rate{
		Period: time.Duration(n) * unit,
		Limit:  int64(limit),
	}, nil
}

// NewRateLimiter limits a route to rateStr (e.g. "10-2m") per caller.
func NewRateLimiter(rdb *redis.Client, rateStr, routeID string) (gin.HandlerFunc, error) {
	rate, err := ParseCustomRate(rateStr)
	if err != nil {
		return nil, fmt.Errorf("rate for route %s: %w", routeID, err)
	}

	store, err := createStore(rdb, routeID, rate.Period)
	if err != nil {
		return nil, err
	}

	instance := limiter.New(store, rate)
	return ginmiddleware.NewMiddleware(instance,
		ginmiddleware.WithKeyGetter(rateKey),
		ginmiddleware.WithErrorHandler(func(c *gin.Context, err error) {
			// The limiter store is unreachable; let the request through rather than block payouts.
			logger.WarnLogger.Warnf("Rate limiter store error on %s: %v", routeID, err)
			c.Next()
		}),
	), nil
}
