package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/agency-leads/internal/config"
	httpmiddleware "github.com/wolfman30/agency-leads/internal/http/middleware"
	"github.com/wolfman30/agency-leads/internal/ratelimit"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// Policies returns the limiter policies derived from config.
func Policies(cfg *appconfig.Config) ratelimit.Policies {
	return ratelimit.Policies{
		ratelimit.ContactFormBucket: {Limit: cfg.ContactRateLimit, Window: cfg.ContactRateWindow},
		httpmiddleware.APIBucket:    httpmiddleware.APIPolicy(cfg.APIRatePerSecond, cfg.APIRateBurst),
	}
}

// BuildLimiter returns the shared limiter for the configured backend. The
// returned close func releases background resources of the memory backend.
func BuildLimiter(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (ratelimit.Limiter, func() error, error) {
	if logger == nil {
		logger = logging.Default()
	}
	policies := Policies(cfg)
	noop := func() error { return nil }

	switch cfg.RateLimitBackend {
	case "redis":
		if redisClient == nil {
			return nil, noop, fmt.Errorf("bootstrap: RATE_LIMIT_BACKEND=redis but redis is unavailable")
		}
		logger.Info("rate limiter backend", "backend", "redis")
		return ratelimit.NewRedisLimiter(redisClient, policies), noop, nil
	case "memory", "":
		logger.Info("rate limiter backend", "backend", "memory")
		limiter := ratelimit.NewMemoryLimiter(policies)
		return limiter, limiter.Close, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown rate limit backend %q", cfg.RateLimitBackend)
	}
}
