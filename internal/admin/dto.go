// AngelaMos | 2026
// dto.go

package admin

import (
	"github.com/carterperez-dev/dreamdiary-backend/internal/access"
	"github.com/carterperez-dev/dreamdiary-backend/internal/billing"
	"github.com/carterperez-dev/dreamdiary-backend/internal/trial"
)

type AccountResponse struct {
	*billing.AccountSnapshot
	Trial   *trial.Record   `json:"trial,omitempty"`
	Verdict *access.Verdict `json:"verdict,omitempty"`
}

type ResyncResponse struct {
	UserID  string `json:"user_id"`
	Outcome string `json:"outcome"`
}

type SystemStatsResponse struct {
	Database *DBPoolStats    `json:"database,omitempty"`
	Redis    *RedisPoolStats `json:"redis,omitempty"`
	Runtime  RuntimeStats    `json:"runtime"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc"`
	MemSys       uint64 `json:"mem_sys"`
	NumGC        uint32 `json:"num_gc"`
}
