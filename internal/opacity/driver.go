package opacity

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/monitoring"
	"github.com/banshee-data/fade.report/internal/serialmux"
	"github.com/banshee-data/fade.report/internal/timeutil"
)

// DefaultTickInterval is the level sampling cadence, matched to the
// nominal 30 fps frame rate of the analysis path.
const DefaultTickInterval = time.Second / 30

// levelEpsilon is the smallest level change worth a serial write.
const levelEpsilon = 0.001

// LevelWriter is the slice of the dimmer console the driver needs.
// Satisfied by the serialmux implementations.
type LevelWriter interface {
	SendLevel(channel, level int) error
}

// sourceDrive pairs one source's state machine with its dimmer channel.
type sourceDrive struct {
	source  fade.SourceID
	label   string
	channel int
	machine *OverlayStateMachine

	lastLevel float64
	sent      bool // a level has been written at least once
}

// Driver owns the per-source overlay machines, applies tracker verdict
// events to them, and writes changed levels to the dimmer console on a
// fixed tick.
type Driver struct {
	cfg    Config
	tick   time.Duration
	clock  timeutil.Clock
	writer LevelWriter

	mu          sync.Mutex
	drives      map[fade.SourceID]*sourceDrive
	nextChannel int
}

// NewDriver creates a driver with no attached sources. Sources attach on
// their first verdict event and are assigned dimmer channels in arrival
// order starting at 1. A non-positive tick selects DefaultTickInterval.
func NewDriver(cfg Config, tick time.Duration, clock timeutil.Clock, writer LevelWriter) *Driver {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	return &Driver{
		cfg:         cfg,
		tick:        tick,
		clock:       clock,
		writer:      writer,
		drives:      make(map[fade.SourceID]*sourceDrive),
		nextChannel: 1,
	}
}

// Run consumes verdict events and writes levels until the context is
// cancelled or the event channel closes.
func (d *Driver) Run(ctx context.Context, events <-chan fade.VerdictEvent) error {
	ticker := d.clock.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.handleEvent(ev)

		case now := <-ticker.C():
			d.flush(now)
		}
	}
}

// handleEvent routes a verdict to the source's machine, attaching the
// source first if this is its first event.
func (d *Driver) handleEvent(ev fade.VerdictEvent) {
	d.mu.Lock()
	drive, ok := d.drives[ev.Source]
	if !ok {
		drive = &sourceDrive{
			source:  ev.Source,
			channel: d.nextChannel,
			machine: NewOverlayStateMachine(d.cfg, d.clock),
		}
		d.nextChannel++
		d.drives[ev.Source] = drive
		monitoring.Logf("[Opacity] attached source %q on dimmer channel %d", ev.Label, drive.channel)
	}
	drive.label = ev.Label
	d.mu.Unlock()

	if drive.machine.Apply(ev.Verdict) {
		_, target, _ := drive.machine.State(d.clock.Now())
		monitoring.Logf("[Opacity] %s: ramp toward %.0f on verdict %s (confidence %.2f)",
			ev.Label, target, ev.Verdict.Type, ev.Verdict.Confidence)
	}
}

// flush samples every machine and writes levels that moved since the last
// successful write. Failed writes keep the stale level so the change is
// retried on the next tick.
func (d *Driver) flush(now time.Time) {
	d.mu.Lock()
	drives := make([]*sourceDrive, 0, len(d.drives))
	for _, drive := range d.drives {
		drives = append(drives, drive)
	}
	d.mu.Unlock()

	for _, drive := range drives {
		level := drive.machine.Level(now)
		if drive.sent && math.Abs(level-drive.lastLevel) <= levelEpsilon {
			continue
		}
		wire := int(math.Round(level * serialmux.MaxLevel))
		if err := d.writer.SendLevel(drive.channel, wire); err != nil {
			monitoring.Logf("[Opacity] failed to write level for %s: %v", drive.label, err)
			continue
		}
		drive.lastLevel = level
		drive.sent = true
	}
}

// Remove detaches a source and darkens its channel. The channel number is
// not reused.
func (d *Driver) Remove(source fade.SourceID) {
	d.mu.Lock()
	drive, ok := d.drives[source]
	if ok {
		delete(d.drives, source)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	if err := d.writer.SendLevel(drive.channel, 0); err != nil {
		monitoring.Logf("[Opacity] failed to darken channel %d for removed source %s: %v",
			drive.channel, drive.label, err)
	}
	monitoring.Logf("[Opacity] detached source %q from dimmer channel %d", drive.label, drive.channel)
}

// SourceLevel is one row of a driver snapshot.
type SourceLevel struct {
	Source        fade.SourceID `json:"source"`
	Label         string        `json:"label"`
	Channel       int           `json:"channel"`
	Level         float64       `json:"level"`
	Target        float64       `json:"target"`
	Transitioning bool          `json:"transitioning"`
}

// Snapshot returns the current level state of every attached source,
// ordered by dimmer channel.
func (d *Driver) Snapshot() []SourceLevel {
	now := d.clock.Now()

	d.mu.Lock()
	out := make([]SourceLevel, 0, len(d.drives))
	for _, drive := range d.drives {
		level, target, transitioning := drive.machine.State(now)
		out = append(out, SourceLevel{
			Source:        drive.source,
			Label:         drive.label,
			Channel:       drive.channel,
			Level:         level,
			Target:        target,
			Transitioning: transitioning,
		})
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
