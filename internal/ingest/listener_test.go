package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fade.report/internal/fade"
)

// recordingObserver captures Register and Observe calls for assertions.
type recordingObserver struct {
	mu         sync.Mutex
	registered []string
	observed   []observeCall
}

type observeCall struct {
	id     fade.SourceID
	sample fade.FrameSample
}

func (o *recordingObserver) Register(label string) fade.SourceID {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registered = append(o.registered, label)
	return fade.SourceID("id-" + label)
}

func (o *recordingObserver) Observe(id fade.SourceID, sample fade.FrameSample) fade.FadeVerdict {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observed = append(o.observed, observeCall{id: id, sample: sample})
	return fade.FadeVerdict{Type: fade.VerdictNone}
}

func (o *recordingObserver) Registered() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.registered...)
}

func (o *recordingObserver) Observations() []observeCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]observeCall(nil), o.observed...)
}

func TestUDPListener_ReceivesAndObserves(t *testing.T) {
	t.Parallel()

	packets := []MockUDPPacket{
		{Data: []byte(`{"source":"cam1","t":10.0,"lum":0.5,"var":0.2,"edge":0.1}`)},
		{Data: []byte(`not json at all`)},
		{Data: []byte(`{"source":"","t":11.0}`)},
		{Data: []byte(`{"source":"cam2","t":10.1,"lum":0.9}`)},
	}
	socket := NewMockUDPSocket(packets)
	factory := NewMockUDPSocketFactory(socket)
	observer := &recordingObserver{}
	stats := NewPacketStats()

	listener := NewUDPListener(UDPListenerConfig{
		Address:       "127.0.0.1:0",
		Observer:      observer,
		Stats:         stats,
		SocketFactory: factory,
		LogInterval:   time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(observer.Observations()) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop after cancellation")
	}

	assert.Equal(t, []string{"cam1", "cam2"}, observer.Registered())

	obs := observer.Observations()
	require.Len(t, obs, 2)
	assert.Equal(t, fade.SourceID("id-cam1"), obs[0].id)
	assert.Equal(t, 0.5, obs[0].sample.Luminance)
	assert.Equal(t, 0.2, obs[0].sample.Variance)
	assert.Equal(t, 0.1, obs[0].sample.EdgeDensity)
	assert.Equal(t, 10.0, obs[0].sample.CapturedAt)
	assert.Equal(t, fade.SourceID("id-cam2"), obs[1].id)

	datagrams, _, parseErrors, dropped, observed, _ := stats.GetAndReset()
	assert.Equal(t, int64(4), datagrams)
	assert.Equal(t, int64(1), parseErrors)
	assert.Equal(t, int64(1), dropped)
	assert.Equal(t, int64(2), observed)

	assert.True(t, socket.Closed)
	assert.Equal(t, 1<<20, socket.ReadBufferSize)
}

func TestUDPListener_ResolveError(t *testing.T) {
	t.Parallel()

	listener := NewUDPListener(UDPListenerConfig{
		Address:  "127.0.0.1:99:99",
		Observer: &recordingObserver{},
	})
	err := listener.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve")
}

func TestUDPListener_ListenError(t *testing.T) {
	t.Parallel()

	factory := NewMockUDPSocketFactory(nil)
	factory.Error = assert.AnError
	listener := NewUDPListener(UDPListenerConfig{
		Address:       "127.0.0.1:0",
		Observer:      &recordingObserver{},
		SocketFactory: factory,
	})
	err := listener.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	require.Len(t, factory.ListenCalls, 1)
	assert.Equal(t, "udp", factory.ListenCalls[0].Network)
}

// TestUDPListener_ReadErrorsTolerated tests that a failed SetReadBuffer
// and a transient read error are both logged and survived.
func TestUDPListener_ReadErrorsTolerated(t *testing.T) {
	t.Parallel()

	socket := NewMockUDPSocket([]MockUDPPacket{
		{Data: []byte(`{"source":"cam1","t":1.5}`)},
	})
	socket.SetReadBufferError = assert.AnError
	socket.ReadError = assert.AnError
	observer := &recordingObserver{}

	listener := NewUDPListener(UDPListenerConfig{
		Address:       "127.0.0.1:0",
		Observer:      observer,
		SocketFactory: NewMockUDPSocketFactory(socket),
		LogInterval:   time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(observer.Observations()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop after cancellation")
	}
}

func TestNewUDPListener_Defaults(t *testing.T) {
	t.Parallel()

	listener := NewUDPListener(UDPListenerConfig{
		Address:  ":9876",
		Observer: &recordingObserver{},
	})
	assert.Equal(t, 1<<20, listener.rcvBuf)
	assert.Equal(t, 64*1024, listener.bufferSize)
	assert.Equal(t, time.Minute, listener.logInterval)
	assert.NotNil(t, listener.stats)
	assert.NotNil(t, listener.factory)

	// Close before Start has no socket to release.
	assert.NoError(t, listener.Close())
}
