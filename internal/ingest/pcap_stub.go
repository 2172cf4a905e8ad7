//go:build !pcap
// +build !pcap

package ingest

import (
	"context"
	"fmt"
)

// ReplayPCAPFile is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable PCAP replay.
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, observer Observer, config ReplayConfig) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP replay")
}
