package health

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
	StatusDisabled  = "disabled"
)

// Pinger is satisfied by *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisProbe is satisfied by *cache.Client
type RedisProbe interface {
	Enabled() bool
	IsHealthy(ctx context.Context) bool
}

// Capability is an optional collaborator reported in the detailed check
type Capability interface {
	Available() bool
}

type HealthChecker struct {
	db           Pinger
	redis        RedisProbe
	capabilities map[string]Capability
	started      time.Time
}

type HealthStatus struct {
	Status   string          `json:"status"`
	Database ComponentHealth `json:"database"`
	Redis    ComponentHealth `json:"redis"`
}

type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"response_time_ms"`
}

type DetailedStatus struct {
	HealthStatus
	Capabilities map[string]bool `json:"capabilities"`
	Host         HostStats       `json:"host"`
	Uptime       string          `json:"uptime"`
}

type HostStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	Load1         float64 `json:"load_1"`
}

func NewHealthChecker(db Pinger, redis RedisProbe, capabilities map[string]Capability) *HealthChecker {
	return &HealthChecker{
		db:           db,
		redis:        redis,
		capabilities: capabilities,
		started:      time.Now(),
	}
}

// CheckBasic is unhealthy only when the database is; Redis trouble degrades
func (h *HealthChecker) CheckBasic(ctx context.Context) HealthStatus {
	dbHealth := h.checkDatabase(ctx)
	redisHealth := h.checkRedis(ctx)

	status := StatusHealthy
	switch {
	case dbHealth.Status != StatusHealthy:
		status = StatusUnhealthy
	case redisHealth.Status == StatusUnhealthy:
		status = StatusDegraded
	}

	return HealthStatus{
		Status:   status,
		Database: dbHealth,
		Redis:    redisHealth,
	}
}

func (h *HealthChecker) CheckDetailed(ctx context.Context) DetailedStatus {
	out := DetailedStatus{
		HealthStatus: h.CheckBasic(ctx),
		Capabilities: make(map[string]bool, len(h.capabilities)),
		Host:         hostStats(),
		Uptime:       time.Since(h.started).Round(time.Second).String(),
	}
	for name, c := range h.capabilities {
		out.Capabilities[name] = c != nil && c.Available()
	}
	return out
}

func (h *HealthChecker) checkDatabase(ctx context.Context) ComponentHealth {
	if h.db == nil {
		return ComponentHealth{Status: StatusUnhealthy}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.db.Ping(ctx)
	responseTime := time.Since(start).Milliseconds()

	if err != nil {
		return ComponentHealth{Status: StatusUnhealthy, ResponseTime: responseTime}
	}
	return ComponentHealth{Status: StatusHealthy, ResponseTime: responseTime}
}

func (h *HealthChecker) checkRedis(ctx context.Context) ComponentHealth {
	if h.redis == nil || !h.redis.Enabled() {
		return ComponentHealth{Status: StatusDisabled}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	ok := h.redis.IsHealthy(ctx)
	responseTime := time.Since(start).Milliseconds()

	if !ok {
		return ComponentHealth{Status: StatusUnhealthy, ResponseTime: responseTime}
	}
	return ComponentHealth{Status: StatusHealthy, ResponseTime: responseTime}
}

// hostStats reports best-effort host figures; unsupported ones stay zero
func hostStats() HostStats {
	stats := HostStats{Goroutines: runtime.NumGoroutine()}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = vm.UsedPercent
	}
	if du, err := disk.Usage("/"); err == nil {
		stats.DiskPercent = du.UsedPercent
	}
	if avg, err := load.Avg(); err == nil {
		stats.Load1 = avg.Load1
	}
	return stats
}
