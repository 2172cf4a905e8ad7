package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

// ReplayConfig configures recorded stats replay behavior.
type ReplayConfig struct {
	// SpeedMultiplier controls replay speed (1.0 = recorded pacing,
	// 2.0 = twice as fast). Values <= 0 mean 1.0.
	SpeedMultiplier float64

	// Stats collects feed counters (optional).
	Stats StatsInterface
}

// ReplayFile feeds a recorded stats capture (one JSON record per line,
// as written by cmd/fadesim) through the observer, pacing records by
// their capture timestamps.
func ReplayFile(ctx context.Context, path string, observer Observer, config ReplayConfig) error {
	if config.SpeedMultiplier <= 0 {
		config.SpeedMultiplier = 1.0
	}
	stats := config.Stats
	if stats == nil {
		stats = &noopStats{}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open replay file %s: %w", path, err)
	}
	defer f.Close()

	log.Printf("Replaying stats from %s (speed: %.1fx)", path, config.SpeedMultiplier)

	scanner := bufio.NewScanner(f)
	recordCount := 0
	observed := 0
	startTime := time.Now()
	var lastCapture float64

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			log.Printf("Replay stopping due to context cancellation (processed %d records)", recordCount)
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		recordCount++
		stats.AddDatagram(len(line))

		rec, err := ParseRecord(line)
		if err != nil {
			if errors.Is(err, ErrInvalidRecord) {
				stats.AddDropped()
			} else {
				stats.AddParseError()
			}
			log.Printf("Replay: skipping record %d: %v", recordCount, err)
			continue
		}

		// Pace by the recorded capture timestamps, scaled by the
		// multiplier. Non-monotonic timestamps replay immediately.
		if lastCapture > 0 {
			delay := time.Duration((rec.CapturedAt - lastCapture) * float64(time.Second))
			scaled := time.Duration(float64(delay) / config.SpeedMultiplier)
			if scaled > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		lastCapture = rec.CapturedAt

		id := observer.Register(rec.Source)
		observer.Observe(id, rec.Sample())
		stats.AddObserved()
		observed++

		if recordCount%10000 == 0 {
			elapsed := time.Since(startTime)
			log.Printf("Replay progress: %d records in %v (%.0f rec/s, speed: %.1fx)",
				recordCount, elapsed, float64(recordCount)/elapsed.Seconds(), config.SpeedMultiplier)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read replay file: %w", err)
	}

	elapsed := time.Since(startTime)
	log.Printf("Replay complete: %d records (%d observed) in %v (speed: %.1fx)",
		recordCount, observed, elapsed, config.SpeedMultiplier)
	return nil
}
