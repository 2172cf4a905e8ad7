package serialmux

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	EventTypeLevelReport = "level_report"
	EventTypeAck         = "ack"
	EventTypeFault       = "fault"
	EventTypeUnknown     = "unknown"
)

// MaxLevel is the top of the console's level scale. Level commands address a
// channel with an integer in [0, MaxLevel]; 0 is fully dark, MaxLevel fully
// lit.
const MaxLevel = 1000

// ClassifyPayload inspects a console line and returns a simple event type
// token. The classification is intentionally conservative: a line that does
// not match a known response shape is reported as unknown rather than
// guessed at.
func ClassifyPayload(payload string) string {
	line := strings.TrimSpace(payload)
	switch {
	case strings.HasPrefix(line, "lvl "):
		return EventTypeLevelReport
	case line == "ok" || strings.HasPrefix(line, "ok "):
		return EventTypeAck
	case strings.HasPrefix(line, "flt "):
		return EventTypeFault
	default:
		return EventTypeUnknown
	}
}

// ParseLevelReport extracts the channel and level from a "lvl <channel>
// <level>" console line.
func ParseLevelReport(payload string) (channel, level int, err error) {
	fields := strings.Fields(payload)
	if len(fields) != 3 || fields[0] != "lvl" {
		return 0, 0, fmt.Errorf("malformed level report %q", payload)
	}
	channel, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad channel in level report %q: %w", payload, err)
	}
	level, err = strconv.Atoi(fields[2])
	if err != nil {
		return 0, 0, fmt.Errorf("bad level in level report %q: %w", payload, err)
	}
	return channel, level, nil
}

// ParseFault extracts the numeric code and message text from a "flt <code>
// <text>" console line.
func ParseFault(payload string) (code int, text string, err error) {
	fields := strings.SplitN(strings.TrimSpace(payload), " ", 3)
	if len(fields) != 3 || fields[0] != "flt" {
		return 0, "", fmt.Errorf("malformed fault line %q", payload)
	}
	code, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, "", fmt.Errorf("bad fault code in %q: %w", payload, err)
	}
	return code, fields[2], nil
}

// LevelCommand formats an L command setting a channel to a level on the
// console's 0..MaxLevel scale. Out of range levels are clamped; the console
// treats them as a fault.
func LevelCommand(channel, level int) string {
	if level < 0 {
		level = 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return fmt.Sprintf("L%d %d", channel, level)
}
