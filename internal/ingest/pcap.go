//go:build pcap
// +build pcap

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ReplayPCAPFile replays captured UDP stats traffic through the parse
// path, pacing packets by their capture timestamps.
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, observer Observer, config ReplayConfig) error {
	if config.SpeedMultiplier <= 0 {
		config.SpeedMultiplier = 1.0
	}
	stats := config.Stats
	if stats == nil {
		stats = &noopStats{}
	}

	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	// Only the stats feed traffic is interesting.
	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter %q: %w", filterStr, err)
	}
	log.Printf("PCAP replay: BPF filter set: %s (speed: %.1fx)", filterStr, config.SpeedMultiplier)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	observed := 0
	startTime := time.Now()
	var lastPacketTime time.Time

	for {
		select {
		case <-ctx.Done():
			log.Printf("PCAP replay stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				elapsed := time.Since(startTime)
				log.Printf("PCAP replay complete: %d packets (%d observed) in %v (speed: %.1fx)",
					packetCount, observed, elapsed, config.SpeedMultiplier)
				return nil
			}
			packetCount++

			captureTime := packet.Metadata().Timestamp
			if !lastPacketTime.IsZero() {
				delay := captureTime.Sub(lastPacketTime)
				scaledDelay := time.Duration(float64(delay) / config.SpeedMultiplier)
				if scaledDelay > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(scaledDelay):
					}
				}
			}
			lastPacketTime = captureTime

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok {
				continue
			}
			payload := udp.Payload
			if len(payload) == 0 {
				continue
			}

			stats.AddDatagram(len(payload))
			rec, err := ParseRecord(payload)
			if err != nil {
				if errors.Is(err, ErrInvalidRecord) {
					stats.AddDropped()
				} else {
					stats.AddParseError()
				}
				continue
			}

			id := observer.Register(rec.Source)
			observer.Observe(id, rec.Sample())
			stats.AddObserved()
			observed++

			if packetCount%10000 == 0 {
				elapsed := time.Since(startTime)
				log.Printf("PCAP replay progress: %d packets in %v (%.0f pkt/s, speed: %.1fx)",
					packetCount, elapsed, float64(packetCount)/elapsed.Seconds(), config.SpeedMultiplier)
			}
		}
	}
}
