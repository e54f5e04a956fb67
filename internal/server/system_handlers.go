package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/phaselock/internal/database"
	"github.com/aristath/phaselock/internal/events"
	"github.com/aristath/phaselock/internal/scheduler"
	"github.com/aristath/phaselock/internal/work"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Version is the reported service version, set at build time with -ldflags.
var Version = "dev"

// Queue reports the state of the run queue.
type Queue interface {
	Enqueue(job *work.Job) error
	Pending() int
	Running() string
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	db          *database.DB
	queue       Queue
	scheduler   *scheduler.Scheduler
	maintenance scheduler.Job
	events      *events.Manager
	// cpuPercent and memPercent are replaced in tests.
	cpuPercent func() (float64, error)
	memPercent func() (float64, error)
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status          string  `json:"status"`
	Version         string  `json:"version"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	Goroutines      int     `json:"goroutines"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryPercent   float64 `json:"memory_percent"`
	QueuePending    int     `json:"queue_pending"`
	QueueRunning    string  `json:"queue_running,omitempty"`
	StreamClients   int     `json:"stream_clients"`
	ScheduledJobs   int     `json:"scheduled_jobs"`
	DataDir         string  `json:"data_dir"`
	DatabaseHealthy bool    `json:"database_healthy"`
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	db *database.DB,
	queue Queue,
	sched *scheduler.Scheduler,
	maintenance scheduler.Job,
	eventManager *events.Manager,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		db:          db,
		queue:       queue,
		scheduler:   sched,
		maintenance: maintenance,
		events:      eventManager,
		cpuPercent: func() (float64, error) {
			// 100ms keeps the endpoint responsive while still sampling
			p, err := cpu.Percent(100*time.Millisecond, false)
			if err != nil || len(p) == 0 {
				return 0, err
			}
			return p[0], nil
		},
		memPercent: func() (float64, error) {
			m, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return m.UsedPercent, nil
		},
	}
}

// HandleSystemStatus returns process, host and queue status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	response := SystemStatusResponse{
		Status:        "healthy",
		Version:       Version,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		QueuePending:  h.queue.Pending(),
		QueueRunning:  h.queue.Running(),
		DataDir:       h.dataDir,
	}
	if h.events != nil {
		response.StreamClients = h.events.Subscribers()
	}
	if h.scheduler != nil {
		response.ScheduledJobs = h.scheduler.Entries()
	}

	var err error
	if response.CPUPercent, err = h.cpuPercent(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	}
	if response.MemoryPercent, err = h.memPercent(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.db.HealthCheck(ctx); err != nil {
		h.log.Error().Err(err).Msg("Database health check failed")
		response.Status = "degraded"
	} else {
		response.DatabaseHealthy = true
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDatabaseStats returns size and page statistics of the run store
// GET /api/system/database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get database stats")
		http.Error(w, "Failed to get database stats", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":           h.db.Name(),
		"size_mb":        float64(stats.SizeBytes) / 1024 / 1024,
		"wal_size_mb":    float64(stats.WALSizeBytes) / 1024 / 1024,
		"page_count":     stats.PageCount,
		"page_size":      stats.PageSize,
		"freelist_count": stats.FreelistCount,
	})
}

// HandleTriggerMaintenance queues the maintenance job behind pending runs
// POST /api/jobs/maintenance
func (h *SystemHandlers) HandleTriggerMaintenance(w http.ResponseWriter, r *http.Request) {
	if h.maintenance == nil {
		h.log.Warn().Msg("Maintenance job not registered")
		http.Error(w, "Maintenance job not registered", http.StatusServiceUnavailable)
		return
	}

	h.log.Info().Msg("Manual maintenance triggered")

	job := &work.Job{
		ID: fmt.Sprintf("manual-maintenance-%d", time.Now().UnixNano()),
		Execute: func(context.Context) error {
			return h.scheduler.RunNow(h.maintenance)
		},
	}
	if err := h.queue.Enqueue(job); err != nil {
		h.log.Error().Err(err).Msg("Failed to trigger maintenance")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "success",
		"message": "Maintenance queued",
		"job_id":  job.ID,
	})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
