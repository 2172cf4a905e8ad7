package monitor

import (
	"fmt"
	"image/color"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/httputil"
	"github.com/banshee-data/fade.report/internal/security"
)

// HistoryPlotter records verdict events during a run and renders PNG
// timelines afterwards. Replay runs enable it to compare classifier
// behaviour across tuning changes without a browser.
type HistoryPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	// order preserves attach order so colors stay stable across runs.
	order  []fade.SourceID
	series map[fade.SourceID]*sourceSeries
}

type sourceSeries struct {
	label   string
	samples []PlotSample
}

// PlotSample is one recorded frame: the sample statistics plus the
// confidence the classifier attached to it.
type PlotSample struct {
	Sequence    int
	Luminance   float64
	Variance    float64
	EdgeDensity float64
	Confidence  float64
}

// NewHistoryPlotter creates a disabled plotter. Call Start to begin
// recording.
func NewHistoryPlotter() *HistoryPlotter {
	return &HistoryPlotter{
		series: make(map[fade.SourceID]*sourceSeries),
	}
}

// Start clears any previous run and begins recording into outputDir.
func (hp *HistoryPlotter) Start(outputDir string) error {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	hp.outputDir = outputDir
	hp.enabled = true
	hp.order = nil
	hp.series = make(map[fade.SourceID]*sourceSeries)
	return nil
}

// Stop disables recording. Call GeneratePlots to produce output files.
func (hp *HistoryPlotter) Stop() {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	hp.enabled = false
}

// IsEnabled returns true while the plotter is recording.
func (hp *HistoryPlotter) IsEnabled() bool {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	return hp.enabled
}

// Record captures one verdict event. Call it for every event on the
// tracker's feed; events arriving while the plotter is stopped are
// ignored.
func (hp *HistoryPlotter) Record(ev fade.VerdictEvent) {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	if !hp.enabled {
		return
	}

	s, ok := hp.series[ev.Source]
	if !ok {
		s = &sourceSeries{label: ev.Label}
		hp.series[ev.Source] = s
		hp.order = append(hp.order, ev.Source)
	}
	s.label = ev.Label
	s.samples = append(s.samples, PlotSample{
		Sequence:    ev.Sample.SequenceIndex,
		Luminance:   ev.Sample.Luminance,
		Variance:    ev.Sample.Variance,
		EdgeDensity: ev.Sample.EdgeDensity,
		Confidence:  ev.Verdict.Confidence,
	})
}

// SampleCount returns the number of recorded frames for a source.
func (hp *HistoryPlotter) SampleCount(id fade.SourceID) int {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	s, ok := hp.series[id]
	if !ok {
		return 0
	}
	return len(s.samples)
}

// GeneratePlots writes one PNG per recorded source plus a combined
// luminance overlay when more than one source was seen. Returns the
// number of files written.
func (hp *HistoryPlotter) GeneratePlots() (int, error) {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	if hp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(hp.series) == 0 {
		return 0, nil
	}

	count := 0
	for _, id := range hp.order {
		s := hp.series[id]
		if len(s.samples) == 0 {
			continue
		}
		if err := hp.generateSourcePlot(s); err != nil {
			return count, fmt.Errorf("source %s: %w", s.label, err)
		}
		count++
	}

	if len(hp.order) > 1 {
		if err := hp.generateOverlayPlot(); err != nil {
			return count, fmt.Errorf("overlay: %w", err)
		}
		count++
	}

	return count, nil
}

// generateSourcePlot renders luminance, variance, edge density and
// confidence for one source. All four share the normalised 0..1 range
// so a single axis carries them.
func (hp *HistoryPlotter) generateSourcePlot(s *sourceSeries) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Frame Statistics", s.label)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Value"

	lumPts := make(plotter.XYs, 0, len(s.samples))
	varPts := make(plotter.XYs, 0, len(s.samples))
	edgePts := make(plotter.XYs, 0, len(s.samples))
	confPts := make(plotter.XYs, 0, len(s.samples))
	for _, sample := range s.samples {
		x := float64(sample.Sequence)
		lumPts = append(lumPts, plotter.XY{X: x, Y: sample.Luminance})
		varPts = append(varPts, plotter.XY{X: x, Y: sample.Variance})
		edgePts = append(edgePts, plotter.XY{X: x, Y: sample.EdgeDensity})
		confPts = append(confPts, plotter.XY{X: x, Y: sample.Confidence})
	}

	colors := generateColors(4)
	lines := []struct {
		name string
		pts  plotter.XYs
	}{
		{"luminance", lumPts},
		{"variance", varPts},
		{"edge density", edgePts},
		{"confidence", confPts},
	}
	for i, ln := range lines {
		line, err := plotter.NewLine(ln.pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(ln.name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(hp.outputDir, fmt.Sprintf("%s_history.png", security.SanitizeFilename(s.label)))
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save history plot: %w", err)
	}
	return nil
}

// generateOverlayPlot renders every source's luminance on one canvas so
// simultaneous fades line up visually.
func (hp *HistoryPlotter) generateOverlayPlot() error {
	p := plot.New()
	p.Title.Text = "All Sources - Luminance"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Luminance"

	colors := generateColors(len(hp.order))
	for i, id := range hp.order {
		s := hp.series[id]
		if len(s.samples) == 0 {
			continue
		}
		pts := make(plotter.XYs, 0, len(s.samples))
		for _, sample := range s.samples {
			pts = append(pts, plotter.XY{X: float64(sample.Sequence), Y: sample.Luminance})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(hp.outputDir, "all_sources_luminance.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save overlay plot: %w", err)
	}
	return nil
}

// handleSourcePlot renders the source's current rolling window as an
// inline PNG, for embedding in external dashboards.
// Query params:
//   - source (required; tracker handle or label)
func (ws *WebServer) handleSourcePlot(w http.ResponseWriter, r *http.Request) {
	id, label, ok := ws.resolveSource(r)
	if !ok {
		httputil.NotFound(w, "unknown source")
		return
	}

	history := ws.tracker.History(id)
	if len(history) == 0 {
		httputil.NotFound(w, "no history for source")
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Rolling Window", label)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Value"
	p.Y.Min = 0
	p.Y.Max = 1

	lumPts := make(plotter.XYs, 0, len(history))
	varPts := make(plotter.XYs, 0, len(history))
	edgePts := make(plotter.XYs, 0, len(history))
	for _, s := range history {
		lumPts = append(lumPts, plotter.XY{X: float64(s.SequenceIndex), Y: s.Luminance})
		varPts = append(varPts, plotter.XY{X: float64(s.SequenceIndex), Y: s.Variance})
		edgePts = append(edgePts, plotter.XY{X: float64(s.SequenceIndex), Y: s.EdgeDensity})
	}

	colors := generateColors(3)
	for i, ln := range []struct {
		name string
		pts  plotter.XYs
	}{
		{"luminance", lumPts},
		{"variance", varPts},
		{"edge density", edgePts},
	} {
		line, err := plotter.NewLine(ln.pts)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to build plot: %v", err))
			return
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(ln.name, line)
	}

	// Dashed rule where luminance crosses into black-frame territory.
	threshold := ws.tracker.Config().BlackLuminanceThreshold
	rule, err := plotter.NewLine(plotter.XYs{
		{X: lumPts[0].X, Y: threshold},
		{X: lumPts[len(lumPts)-1].X, Y: threshold},
	})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	rule.Color = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	rule.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(rule)
	p.Legend.Add("black threshold", rule)
	p.Legend.Top = true

	wt, err := p.WriterTo(12*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}

// generateColors returns n visually distinct colors by walking the hue
// wheel at fixed saturation and lightness.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL in [0,1] to RGB bytes.
func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	if s == 0 {
		v := uint8(math.Round(l * 255))
		return v, v, v
	}

	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q

	r := hueToChannel(p, q, h+1.0/3.0)
	g := hueToChannel(p, q, h)
	b := hueToChannel(p, q, h-1.0/3.0)
	return uint8(math.Round(r * 255)), uint8(math.Round(g * 255)), uint8(math.Round(b * 255))
}

func hueToChannel(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
