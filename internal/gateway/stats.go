package gateway

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ServerStats is the periodic STATS payload and the /api/stats response.
type ServerStats struct {
	Sessions    int     `json:"sessions"`
	Goroutines  int     `json:"goroutines"`
	CPUCores    int     `json:"cpu_cores"`
	CPUPercent  float64 `json:"cpu_percent"`
	Load1       float64 `json:"load_1"`
	MemUsedMB   float64 `json:"mem_used_mb"`
	MemTotalMB  float64 `json:"mem_total_mb"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	UptimeSec   int64   `json:"uptime_sec"`
	LatencyP50  float64 `json:"latency_p50_ms"`
	LatencyP95  float64 `json:"latency_p95_ms"`
	LatencyP99  float64 `json:"latency_p99_ms"`
	MarketOpen  bool    `json:"market_open"`
	Market      string  `json:"market_status"`
	TS          string  `json:"ts"`
}

type cpuSample struct {
	idle, total uint64
}

var (
	cpuMu   sync.Mutex
	prevCPU cpuSample
)

// collectStats gathers process and host usage. Host figures stay zero where
// /proc is unavailable.
func collectStats(start time.Time) ServerStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := ServerStats{
		Goroutines:  runtime.NumGoroutine(),
		CPUCores:    runtime.NumCPU(),
		HeapAllocMB: float64(ms.HeapAlloc) / 1024 / 1024,
		GCRuns:      ms.NumGC,
		UptimeSec:   int64(time.Since(start).Seconds()),
		TS:          time.Now().UTC().Format(time.RFC3339Nano),
	}

	cur := readCPU()
	cpuMu.Lock()
	if prevCPU.total > 0 && cur.total > prevCPU.total {
		s.CPUPercent = (1 - float64(cur.idle-prevCPU.idle)/float64(cur.total-prevCPU.total)) * 100
	}
	prevCPU = cur
	cpuMu.Unlock()

	if f := procFields("/proc/loadavg", ""); len(f) > 0 {
		s.Load1, _ = strconv.ParseFloat(f[0], 64)
	}
	total := procKB("MemTotal:")
	if avail := procKB("MemAvailable:"); total > 0 && avail <= total {
		s.MemTotalMB = float64(total) / 1024
		s.MemUsedMB = float64(total-avail) / 1024
	}
	return s
}

func readCPU() cpuSample {
	f := procFields("/proc/stat", "cpu ")
	if len(f) < 5 {
		return cpuSample{}
	}
	var c cpuSample
	for i, v := range f[1:] {
		n, _ := strconv.ParseUint(v, 10, 64)
		c.total += n
		if i == 3 {
			c.idle = n
		}
	}
	return c
}

func procKB(prefix string) uint64 {
	f := procFields("/proc/meminfo", prefix)
	if len(f) < 2 {
		return 0
	}
	n, _ := strconv.ParseUint(f[1], 10, 64)
	return n
}

// procFields returns the fields of the first line in path starting with
// prefix.
func procFields(path, prefix string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, prefix) {
			return strings.Fields(line)
		}
	}
	return nil
}
