package serialmux

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// ConsoleState holds the most recent levels and fault reported by the dimmer
// console. One instance is shared between the line-handling goroutine and the
// admin/API surfaces that inspect it.
type ConsoleState struct {
	mu        sync.Mutex
	levels    map[int]int
	lastFault string
	faultAt   time.Time
	faults    int
}

func NewConsoleState() *ConsoleState {
	return &ConsoleState{
		levels: make(map[int]int),
	}
}

// Levels returns a copy of the latest confirmed per-channel levels.
func (c *ConsoleState) Levels() map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]int, len(c.levels))
	for channel, level := range c.levels {
		out[channel] = level
	}
	return out
}

// Level returns the latest confirmed level for a channel.
func (c *ConsoleState) Level(channel int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	level, ok := c.levels[channel]
	return level, ok
}

// LastFault returns the most recent fault text, when it was seen, and the
// total fault count since startup.
func (c *ConsoleState) LastFault() (string, time.Time, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFault, c.faultAt, c.faults
}

// HandleLevelReport records a "lvl" line into the console state.
func HandleLevelReport(state *ConsoleState, payload string) error {
	channel, level, err := ParseLevelReport(payload)
	if err != nil {
		return err
	}
	state.mu.Lock()
	state.levels[channel] = level
	state.mu.Unlock()
	return nil
}

// HandleFault records a "flt" line and logs it. A fault does not stop the
// console; the driver keeps sending levels and the console reports whether
// they take effect.
func HandleFault(state *ConsoleState, payload string) error {
	code, text, err := ParseFault(payload)
	if err != nil {
		return err
	}
	state.mu.Lock()
	state.lastFault = fmt.Sprintf("%d %s", code, text)
	state.faultAt = time.Now()
	state.faults++
	state.mu.Unlock()
	log.Printf("dimmer fault %d: %s", code, text)
	return nil
}

// HandleEvent dispatches a console line to the appropriate handler.
func HandleEvent(state *ConsoleState, payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypeLevelReport:
		if err := HandleLevelReport(state, payload); err != nil {
			return fmt.Errorf("failed to handle level report: %w", err)
		}
	case EventTypeFault:
		if err := HandleFault(state, payload); err != nil {
			return fmt.Errorf("failed to handle fault: %w", err)
		}
	case EventTypeAck:
		// plain acknowledgements carry no state
	default:
		log.Printf("unknown console line: %s", payload)
	}
	return nil
}
