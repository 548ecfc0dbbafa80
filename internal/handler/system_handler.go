package handler

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
)

const systemInterval = 7 * time.Second

// SessionCounter reports how many sessions are live.
type SessionCounter interface {
	Len() int
}

// SystemHandler streams process and queue health to admins via SSE.
type SystemHandler struct {
	rdb       *redis.Client
	sessions  SessionCounter
	startTime time.Time
	log       zerolog.Logger

	prevIdle  uint64
	prevTotal uint64
}

func NewSystemHandler(rdb *redis.Client, sessions SessionCounter, log zerolog.Logger) *SystemHandler {
	h := &SystemHandler{
		rdb:       rdb,
		sessions:  sessions,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
	// first tick needs a baseline for the CPU delta
	h.prevIdle, h.prevTotal, _ = readCPUStat()
	return h
}

type systemStats struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	CPUPercent    float64 `json:"cpu_percent"`
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
	MemTotalBytes uint64  `json:"mem_total_bytes"`
	AppRSSBytes   uint64  `json:"app_rss_bytes"`

	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`

	LiveSessions     int   `json:"live_sessions"`
	QueueAnomalies   int64 `json:"queue_anomalies"`
	QueueSubmissions int64 `json:"queue_submissions"`
}

// SystemSSE godoc
// GET /api/v1/admin/system
func (h *SystemHandler) SystemSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Admin connected to system SSE")

	ticker := time.NewTicker(systemInterval)
	defer ticker.Stop()

	c.SSEvent("system", h.collect(reqCtx))
	c.Writer.Flush()

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from system SSE")
			return
		case <-ticker.C:
			c.SSEvent("system", h.collect(reqCtx))
			c.Writer.Flush()
		}
	}
}

func (h *SystemHandler) collect(ctx context.Context) systemStats {
	s := systemStats{
		Timestamp: time.Now().Unix(),
		Uptime:    formatUptime(time.Since(h.startTime)),
		GoVersion: runtime.Version(),
	}

	if idle, total, err := readCPUStat(); err == nil && total > h.prevTotal {
		s.CPUPercent = (1 - float64(idle-h.prevIdle)/float64(total-h.prevTotal)) * 100
		h.prevIdle, h.prevTotal = idle, total
	}

	if mem, err := readKB("/proc/meminfo", "MemTotal", "MemAvailable"); err == nil {
		s.MemTotalBytes = mem["MemTotal"]
		s.MemUsedBytes = mem["MemTotal"] - mem["MemAvailable"]
	}
	if st, err := readKB("/proc/self/status", "VmRSS"); err == nil {
		s.AppRSSBytes = st["VmRSS"]
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.Goroutines = runtime.NumGoroutine()
	s.HeapAlloc = ms.HeapAlloc
	s.NumGC = ms.NumGC

	if h.sessions != nil {
		s.LiveSessions = h.sessions.Len()
	}

	if h.rdb != nil {
		pipe := h.rdb.Pipeline()
		anomalies := pipe.LLen(ctx, config.WorkerKey.PersistAnomaliesQueue)
		submissions := pipe.LLen(ctx, config.WorkerKey.PersistSubmissionsQueue)
		if _, err := pipe.Exec(ctx); err == nil {
			s.QueueAnomalies = anomalies.Val()
			s.QueueSubmissions = submissions.Val()
		}
	}
	return s
}

// readCPUStat returns aggregate idle and total ticks from /proc/stat.
func readCPUStat() (idle, total uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat format")
	}
	for i, f := range fields[1:] {
		v, _ := strconv.ParseUint(f, 10, 64)
		total += v
		if i == 3 {
			idle = v
		}
	}
	return idle, total, nil
}

// readKB reads "Key: N kB" lines from a /proc file and returns them in bytes.
func readKB(path string, keys ...string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := make(map[string]uint64, len(keys))

	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(out) < len(keys) {
		k, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok || !want[k] {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, _ := strconv.ParseUint(fields[0], 10, 64)
		out[k] = v * 1024
	}
	return out, scanner.Err()
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	if days > 0 {
		return fmt.Sprintf("%dd %s", days, d-time.Duration(days)*24*time.Hour)
	}
	return d.String()
}
