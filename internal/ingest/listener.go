package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/banshee-data/fade.report/internal/fade"
)

// Observer consumes parsed frame samples. *fade.Tracker satisfies it.
// Register is called per datagram so an evicted source that reappears
// is minted a fresh handle.
type Observer interface {
	Register(label string) fade.SourceID
	Observe(id fade.SourceID, sample fade.FrameSample) fade.FadeVerdict
}

// StatsInterface provides feed statistics management.
type StatsInterface interface {
	AddDatagram(bytes int)
	AddParseError()
	AddDropped()
	AddObserved()
	LogStats()
}

// UDPListener receives stats datagrams from upstream reducers and runs
// them through parse, registration, and observation.
type UDPListener struct {
	address     string
	rcvBuf      int
	bufferSize  int
	logInterval time.Duration
	observer    Observer
	stats       StatsInterface
	factory     UDPSocketFactory
	socket      UDPSocket
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	// Address is the UDP listen address, host:port.
	Address string
	// ReadBufferBytes sizes the OS receive buffer. Defaults to 1 MiB.
	ReadBufferBytes int
	// DatagramBytes sizes the per-read buffer and bounds the largest
	// accepted datagram. Defaults to 64 KiB.
	DatagramBytes int
	// LogInterval is the period between stats reports. Defaults to a
	// minute.
	LogInterval time.Duration
	// Observer receives parsed samples. Required.
	Observer Observer
	// Stats collects feed counters. Optional.
	Stats StatsInterface
	// SocketFactory creates the listening socket. Defaults to real UDP.
	SocketFactory UDPSocketFactory
}

// NewUDPListener creates a UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// A no-op stats implementation when none is supplied keeps the
	// receive and logging paths nil-safe.
	var stats StatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	factory := config.SocketFactory
	if factory == nil {
		factory = NewRealUDPSocketFactory()
	}

	rcvBuf := config.ReadBufferBytes
	if rcvBuf <= 0 {
		rcvBuf = 1 << 20
	}

	bufferSize := config.DatagramBytes
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      rcvBuf,
		bufferSize:  bufferSize,
		logInterval: logInterval,
		observer:    config.Observer,
		stats:       stats,
		factory:     factory,
	}
}

// noopStats is a StatsInterface implementation that does nothing.
type noopStats struct{}

func (n *noopStats) AddDatagram(bytes int) {}
func (n *noopStats) AddParseError()        {}
func (n *noopStats) AddDropped()           {}
func (n *noopStats) AddObserved()          {}
func (n *noopStats) LogStats()             {}

// Start begins listening for stats datagrams and processing them.
// It blocks until the context is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	socket, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.socket = socket
	defer socket.Close()

	if err := socket.SetReadBuffer(l.rcvBuf); err != nil {
		log.Printf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
	}

	log.Printf("Stats listener started on %s with receive buffer %d bytes", socket.LocalAddr(), l.rcvBuf)

	go l.startStatsLogging(ctx)

	buffer := make([]byte, l.bufferSize)

	for {
		select {
		case <-ctx.Done():
			log.Print("Stats listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// A short read deadline keeps the loop responsive to
			// context cancellation.
			socket.SetReadDeadline(time.Now().Add(time.Second))

			n, _, err := socket.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("UDP read error: %v", err)
				continue
			}

			l.handleDatagram(buffer[:n])
		}
	}
}

// handleDatagram runs one received datagram through parse and observe.
// Malformed input is counted and dropped, never fatal.
func (l *UDPListener) handleDatagram(data []byte) {
	l.stats.AddDatagram(len(data))

	rec, err := ParseRecord(data)
	if err != nil {
		if errors.Is(err, ErrInvalidRecord) {
			l.stats.AddDropped()
		} else {
			l.stats.AddParseError()
		}
		return
	}

	id := l.observer.Register(rec.Source)
	l.observer.Observe(id, rec.Sample())
	l.stats.AddObserved()
}

// startStatsLogging periodically logs feed statistics. An initial report
// fires shortly after startup, then reports continue on the configured
// interval.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// Close closes the listening socket and releases resources.
func (l *UDPListener) Close() error {
	if l.socket != nil {
		return l.socket.Close()
	}
	return nil
}
