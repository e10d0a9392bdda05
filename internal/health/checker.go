package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker pings the shop's dependencies and publishes the result on a gRPC
// health server. Each dependency is reported under its own service name and
// the overall status ("") is SERVING only when all of them answer.
type Checker struct {
	server   *health.Server
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	names  []string
	checks map[string]Pinger
}

func NewChecker(server *health.Server, interval time.Duration, logger *slog.Logger) *Checker {
	return &Checker{
		server:   server,
		interval: interval,
		timeout:  2 * time.Second,
		logger:   logger,
		checks:   make(map[string]Pinger),
	}
}

func (c *Checker) Add(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.checks[name]; !ok {
		c.names = append(c.names, name)
	}
	c.checks[name] = p
}

func (c *Checker) Run(ctx context.Context) {
	c.Check(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Check(ctx)
		case <-ctx.Done():
			c.server.Shutdown()
			return
		}
	}
}

// Check pings every dependency once and returns whether all are healthy.
func (c *Checker) Check(ctx context.Context) bool {
	c.mu.Lock()
	names := append([]string(nil), c.names...)
	checks := make(map[string]Pinger, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.Unlock()

	healthy := true
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := checks[name].Ping(pctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			healthy = false
			status = healthpb.HealthCheckResponse_NOT_SERVING
			c.logger.WarnContext(ctx, "dependency unhealthy",
				slog.String("dependency", name),
				slog.Any("error", err))
		}
		c.server.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus("", overall)
	return healthy
}
