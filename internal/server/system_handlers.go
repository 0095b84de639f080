package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/reliability"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/aristath/folio/internal/work"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	databases   map[string]*database.DB
	scheduler   *scheduler.Scheduler
	processor   *work.Processor
	backups     *reliability.BackupService // nil when backups are disabled
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases map[string]*database.DB,
	sched *scheduler.Scheduler,
	processor *work.Processor,
	backups *reliability.BackupService,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		databases:   databases,
		scheduler:   sched,
		processor:   processor,
		backups:     backups,
	}
}

// SystemStatusResponse represents the system status
type SystemStatusResponse struct {
	Status        string                `json:"status"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	CPUPercent    float64               `json:"cpu_percent"`
	MemoryPercent float64               `json:"memory_percent"`
	Disk          DiskUsageResponse     `json:"disk"`
	Databases     []DBInfo              `json:"databases"`
	Jobs          []scheduler.JobStatus `json:"jobs"`
	WorkPending   int                   `json:"work_pending"`
	WorkInFlight  []string              `json:"work_in_flight"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	Healthy   bool    `json:"healthy"`
	Error     string  `json:"error,omitempty"`
}

// DiskUsageResponse represents disk usage of the data directory
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	UsedPercent float64 `json:"used_percent"`
	AvailableMB float64 `json:"available_mb"`
}

// GetSystemStatusSnapshot returns a snapshot of the current system status.
// Host stat failures are logged and reported as zero.
func (h *SystemHandlers) GetSystemStatusSnapshot(ctx context.Context) SystemStatusResponse {
	cpuPct, memPct := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPct,
		MemoryPercent: memPct,
		Disk:          h.getDiskUsage(),
		Databases:     h.getDatabaseInfo(ctx),
		Jobs:          []scheduler.JobStatus{},
		WorkInFlight:  []string{},
	}

	for _, db := range response.Databases {
		if !db.Healthy {
			response.Status = "degraded"
		}
	}
	if h.scheduler != nil {
		response.Jobs = h.scheduler.Jobs()
	}
	if h.processor != nil {
		response.WorkPending = h.processor.Pending()
		response.WorkInFlight = h.processor.InFlight()
	}

	return response
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")
	h.writeJSON(w, http.StatusOK, h.GetSystemStatusSnapshot(r.Context()))
}

// HandleJobsStatus handles GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobStatus{}
	if h.scheduler != nil {
		jobs = h.scheduler.Jobs()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// HandleTriggerJob handles POST /api/system/jobs/{name}/run.
// The job runs in the background; its outcome shows up in the jobs status.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.scheduler == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "unknown job: " + name})
		return
	}
	job, ok := h.scheduler.Lookup(name)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "unknown job: " + name})
		return
	}

	go func() {
		if err := h.scheduler.RunNow(job); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "triggered",
		"job":     name,
		"message": "Job started in the background",
	})
}

// HandleListBackups handles GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"enabled": false,
			"backups": []reliability.BackupInfo{},
		})
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		h.writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"backups": backups,
		"count":   len(backups),
	})
}

func (h *SystemHandlers) getDatabaseInfo(ctx context.Context) []DBInfo {
	names := make([]string, 0, len(h.databases))
	for name := range h.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]DBInfo, 0, len(names))
	for _, name := range names {
		db := h.databases[name]
		info := DBInfo{Name: name, Path: db.Path(), Healthy: true}

		if stats, err := db.GetStats(); err == nil {
			info.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			info.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
		} else {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to read database stats")
		}

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := db.HealthCheck(checkCtx); err != nil {
			info.Healthy = false
			info.Error = err.Error()
		}
		cancel()

		out = append(out, info)
	}
	return out
}

func (h *SystemHandlers) getDiskUsage() DiskUsageResponse {
	usage := DiskUsageResponse{DataDirMB: h.getDirSize(h.dataDir)}

	st, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
		return usage
	}
	usage.UsedPercent = st.UsedPercent
	usage.AvailableMB = float64(st.Free) / 1024 / 1024
	return usage
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats returns CPU and RAM usage percentages.
// CPU is sampled over 100ms so the endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
