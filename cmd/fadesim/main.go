// Command fadesim generates labeled synthetic feeds for the fade
// detector: JSONL recordings of per-frame statistics plus a labels
// manifest for the evaluation harness, or live datagrams against a
// running daemon.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/fsutil"
)

type simConfig struct {
	scenarios []Scenario
	fps       float64
	duration  float64
	noise     float64
	seed      int64
}

func main() {
	scenarioName := flag.String("scenario", "all", "scenario to generate, or \"all\"")
	outDir := flag.String("out", "fade_sim", "output directory for recordings and the labels manifest")
	udpAddr := flag.String("udp", "", "send datagrams to this host:port instead of writing files")
	fps := flag.Float64("fps", 30, "frames per second")
	duration := flag.Float64("duration", 10, "seconds per scenario")
	noise := flag.Float64("noise", 0.01, "luminance jitter amplitude at full brightness")
	seed := flag.Int64("seed", 1, "jitter seed")
	flag.Parse()

	selected, err := selectScenarios(*scenarioName)
	if err != nil {
		log.Fatal(err)
	}

	cfg := simConfig{
		scenarios: selected,
		fps:       *fps,
		duration:  *duration,
		noise:     *noise,
		seed:      *seed,
	}

	if *udpAddr != "" {
		if err := streamScenarios(*udpAddr, cfg); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := writeScenarios(fsutil.OSFileSystem{}, *outDir, cfg); err != nil {
		log.Fatal(err)
	}
}

// selectScenarios resolves the -scenario flag against the built-in set.
func selectScenarios(name string) ([]Scenario, error) {
	all := scenarios()
	if name == "all" {
		return all, nil
	}
	names := make([]string, 0, len(all))
	for _, sc := range all {
		if sc.Name == name {
			return []Scenario{sc}, nil
		}
		names = append(names, sc.Name)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown scenario %q (available: %s)", name, strings.Join(names, ", "))
}

func newGenerator(cfg simConfig) *Generator {
	gen := NewGenerator(cfg.seed)
	gen.FPS = cfg.fps
	gen.Duration = cfg.duration
	gen.Noise = cfg.noise
	return gen
}

// writeScenarios records every selected scenario as a JSONL file in
// dir, one wire record per line, then writes the labels manifest the
// sweep tool scores against.
func writeScenarios(fs fsutil.FileSystem, dir string, cfg simConfig) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var manifest fade.ScenarioManifest
	for _, sc := range cfg.scenarios {
		gen := newGenerator(cfg)
		name := sc.Name + ".jsonl"
		path := filepath.Join(dir, name)
		if err := writeRecording(fs, path, sc, gen); err != nil {
			return err
		}
		manifest.Scenarios = append(manifest.Scenarios, fade.LabeledScenario{
			File:      name,
			Source:    fade.SourceID(sc.Name),
			Intervals: sc.labels(gen.Frames(), gen.FPS),
		})
		log.Printf("✓ Created: %s (%d frames)", path, gen.Frames())
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal labels manifest: %w", err)
	}
	labelsPath := filepath.Join(dir, "labels.json")
	if err := fs.WriteFileAtomic(labelsPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write labels manifest: %w", err)
	}
	log.Printf("✓ Created: %s (%d scenarios)", labelsPath, len(manifest.Scenarios))
	return nil
}

func writeRecording(fs fsutil.FileSystem, path string, sc Scenario, gen *Generator) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for i := 0; i < gen.Frames(); i++ {
		line, err := json.Marshal(gen.Frame(sc, i))
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// streamScenarios sends the selected scenarios as live UDP feeds, all
// sources interleaved at the configured frame rate. Capture times are
// wall clock so the daemon's idle eviction behaves as in production.
func streamScenarios(addr string, cfg simConfig) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	gens := make([]*Generator, len(cfg.scenarios))
	for i := range gens {
		gens[i] = newGenerator(cfg)
	}
	frames := gens[0].Frames()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / cfg.fps))
	defer ticker.Stop()

	log.Printf("streaming %d scenarios to %s at %.0f fps", len(cfg.scenarios), addr, cfg.fps)
	for i := 0; i < frames; i++ {
		for j, sc := range cfg.scenarios {
			rec := gens[j].Frame(sc, i)
			rec.CapturedAt = float64(time.Now().UnixNano()) / float64(time.Second)
			line, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}
			if _, err := conn.Write(line); err != nil {
				return fmt.Errorf("failed to send datagram: %w", err)
			}
		}
		if (i+1)%100 == 0 {
			log.Printf("%d/%d frames", i+1, frames)
		}
		<-ticker.C
	}
	log.Printf("✓ Sent %d frames across %d sources", frames*len(cfg.scenarios), len(cfg.scenarios))
	return nil
}
