package ingest

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// PacketStats tracks stats-feed counters with thread-safe operations.
// Interval counters feed the periodic log line and reset with each
// GetAndReset; the totals accumulate for the lifetime of the process
// and back the stats API.
type PacketStats struct {
	mu            sync.Mutex
	datagramCount int64
	byteCount     int64
	parseErrors   int64
	droppedCount  int64
	observedCount int64
	lastReset     time.Time

	totals  PacketStatsSnapshot
	started time.Time
}

// PacketStatsSnapshot is the cumulative view of the feed counters.
type PacketStatsSnapshot struct {
	Datagrams   int64         `json:"datagrams"`
	Bytes       int64         `json:"bytes"`
	ParseErrors int64         `json:"parse_errors"`
	Dropped     int64         `json:"dropped"`
	Observed    int64         `json:"observed"`
	Duration    time.Duration `json:"duration"`
}

// NewPacketStats creates a new PacketStats instance.
func NewPacketStats() *PacketStats {
	now := time.Now()
	return &PacketStats{
		lastReset: now,
		started:   now,
	}
}

// AddDatagram increments datagram count and byte count.
func (ps *PacketStats) AddDatagram(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.datagramCount++
	ps.byteCount += int64(bytes)
	ps.totals.Datagrams++
	ps.totals.Bytes += int64(bytes)
}

// AddParseError increments the malformed-JSON count.
func (ps *PacketStats) AddParseError() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.parseErrors++
	ps.totals.ParseErrors++
}

// AddDropped increments the count of records rejected by validation.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
	ps.totals.Dropped++
}

// AddObserved increments the count of samples handed to the tracker.
func (ps *PacketStats) AddObserved() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.observedCount++
	ps.totals.Observed++
}

// Totals returns the cumulative counters since startup without
// disturbing the logging interval.
func (ps *PacketStats) Totals() PacketStatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	snap := ps.totals
	snap.Duration = time.Since(ps.started)
	return snap
}

// GetAndReset returns current counters and resets them.
func (ps *PacketStats) GetAndReset() (datagrams, bytes, parseErrors, dropped, observed int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	datagrams = ps.datagramCount
	bytes = ps.byteCount
	parseErrors = ps.parseErrors
	dropped = ps.droppedCount
	observed = ps.observedCount

	ps.datagramCount = 0
	ps.byteCount = 0
	ps.parseErrors = 0
	ps.droppedCount = 0
	ps.observedCount = 0
	ps.lastReset = now

	return
}

// LogStats logs one interval's worth of counters and resets them.
// Quiet intervals with no traffic produce no output.
func (ps *PacketStats) LogStats() {
	datagrams, bytes, parseErrors, dropped, observed, duration := ps.GetAndReset()
	if datagrams == 0 && parseErrors == 0 {
		return
	}

	perSec := float64(datagrams) / duration.Seconds()
	kibPerSec := float64(bytes) / duration.Seconds() / 1024

	logMsg := fmt.Sprintf("Stats feed (/sec): %.1f datagrams, %.1f KiB, %s samples observed",
		perSec, kibPerSec, FormatWithCommas(observed))
	if parseErrors > 0 {
		logMsg += fmt.Sprintf(", %d malformed", parseErrors)
	}
	if dropped > 0 {
		logMsg += fmt.Sprintf(", %d invalid dropped", dropped)
	}

	log.Print(logMsg)
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
