package serialmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestDisabledSerialMux tests the no-op mux used with --disable-dimmer
func TestDisabledSerialMux(t *testing.T) {
	mux := NewDisabledSerialMux()

	if err := mux.Initialize(); err != nil {
		t.Errorf("Initialize returned error: %v", err)
	}
	if err := mux.SendCommand("L1 500"); err != nil {
		t.Errorf("SendCommand returned error: %v", err)
	}
	if err := mux.SendLevel(1, 500); err != nil {
		t.Errorf("SendLevel returned error: %v", err)
	}

	id, ch := mux.Subscribe()
	if id == "" || ch == nil {
		t.Fatal("Subscribe returned empty ID or nil channel")
	}

	// Unsubscribe closes the channel
	done := make(chan bool)
	go func() {
		_, ok := <-ch
		done <- !ok
	}()
	mux.Unsubscribe(id)
	select {
	case closed := <-done:
		if !closed {
			t.Error("Expected channel to be closed on Unsubscribe")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel closure")
	}
}

// TestDisabledSerialMux_Monitor tests that Monitor blocks until cancelled
func TestDisabledSerialMux_Monitor(t *testing.T) {
	mux := NewDisabledSerialMux()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- mux.Monitor(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("Monitor returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for Monitor to exit")
	}
}

// TestDisabledSerialMux_Close tests that Close releases subscribers
func TestDisabledSerialMux_Close(t *testing.T) {
	mux := NewDisabledSerialMux()
	_, ch := mux.Subscribe()

	done := make(chan bool)
	go func() {
		_, ok := <-ch
		done <- !ok
	}()

	if err := mux.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}

	select {
	case closed := <-done:
		if !closed {
			t.Error("Expected channel to be closed on Close")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel closure")
	}

	// Close is idempotent and Subscribe after Close returns a closed channel
	if err := mux.Close(); err != nil {
		t.Errorf("Second Close returned error: %v", err)
	}
	_, ch2 := mux.Subscribe()
	select {
	case _, ok := <-ch2:
		if ok {
			t.Error("Expected closed channel from Subscribe after Close")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout reading channel from Subscribe after Close")
	}
}

// TestDisabledSerialMux_AdminRoutes tests the placeholder debug route
func TestDisabledSerialMux_AdminRoutes(t *testing.T) {
	mux := NewDisabledSerialMux()

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	req := httptest.NewRequest(http.MethodGet, "/debug/dimmer-disabled", nil)
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "dimmer disabled" {
		t.Errorf("Unexpected body: %q", w.Body.String())
	}
}
