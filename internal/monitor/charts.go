package monitor

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleSourceChart renders the source's rolling window as a luminance
// and variance timeline. This is a debugging endpoint; the axis covers
// the full normalised range so fades read as a slide toward zero.
// Query params:
//   - source (required; tracker handle or label)
func (ws *WebServer) handleSourceChart(w http.ResponseWriter, r *http.Request) {
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

	x := make([]string, 0, len(history))
	lum := make([]opts.LineData, 0, len(history))
	variance := make([]opts.LineData, 0, len(history))
	edges := make([]opts.LineData, 0, len(history))
	for _, s := range history {
		x = append(x, strconv.Itoa(s.SequenceIndex))
		lum = append(lum, opts.LineData{Value: s.Luminance})
		variance = append(variance, opts.LineData{Value: s.Variance})
		edges = append(edges, opts.LineData{Value: s.EdgeDensity})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Source Window", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Frame Statistics", Subtitle: fmt.Sprintf("source=%s frames=%d", label, len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Value", Min: 0, Max: 1}),
	)
	line.SetXAxis(x).
		AddSeries("luminance", lum).
		AddSeries("variance", variance).
		AddSeries("edge density", edges)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleConfidenceChart renders the classifier's recent confidence and
// rate for one source from the trace ring.
// Query params:
//   - source (required; tracker handle or label)
//   - n (optional; default 512 events)
func (ws *WebServer) handleConfidenceChart(w http.ResponseWriter, r *http.Request) {
	if ws.trace == nil {
		httputil.NotFound(w, "trace ring not configured")
		return
	}
	id, label, ok := ws.resolveSource(r)
	if !ok {
		httputil.NotFound(w, "unknown source")
		return
	}

	n := 512
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 4096 {
			n = parsed
		}
	}

	events := ws.trace.Recent(id, n)
	if len(events) == 0 {
		httputil.NotFound(w, "no trace events for source")
		return
	}

	// Recent returns newest first; plot oldest to newest.
	x := make([]string, 0, len(events))
	confidence := make([]opts.LineData, 0, len(events))
	rate := make([]opts.LineData, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		x = append(x, strconv.Itoa(ev.Sequence))
		confidence = append(confidence, opts.LineData{Value: ev.Verdict.Confidence})
		rate = append(rate, opts.LineData{Value: ev.Verdict.AverageRate})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Classifier Trace", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Verdict Confidence", Subtitle: fmt.Sprintf("source=%s events=%d", label, len(events))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Value"}),
	)
	line.SetXAxis(x).
		AddSeries("confidence", confidence).
		AddSeries("avg rate", rate)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleVerdictsChart renders a bar chart of lifetime verdict counts.
func (ws *WebServer) handleVerdictsChart(w http.ResponseWriter, r *http.Request) {
	totals := ws.tracker.Stats().Totals()

	order := []fade.VerdictType{
		fade.VerdictNone,
		fade.VerdictFadeIn,
		fade.VerdictPotentialFadeOut,
		fade.VerdictFadeOut,
	}
	x := make([]string, 0, len(order)+1)
	y := make([]opts.BarData, 0, len(order)+1)
	for _, v := range order {
		x = append(x, string(v))
		y = append(y, opts.BarData{Value: totals.VerdictCounts[v]})
	}
	x = append(x, "dropped")
	y = append(y, opts.BarData{Value: totals.Dropped})

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Verdict Totals", Subtitle: fmt.Sprintf("frames=%d uptime=%s", totals.Frames, totals.Duration.Round(time.Second))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("verdicts", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>fade.report dashboard</title>
  <style>
    body { background: #1e1e1e; color: #d4d4d4; font-family: monospace; margin: 1em; }
    h1 { color: #4ec9b0; font-size: 1.2em; }
    iframe { border: 1px solid #3c3c3c; width: 100%%; height: 640px; margin-bottom: 1em; }
  </style>
</head>
<body>
  <h1>fade.report dashboard %s</h1>
  <iframe src="/charts/verdicts"></iframe>
  <iframe src="/charts/source%s"></iframe>
  <iframe src="/charts/confidence%s"></iframe>
</body>
</html>
`

// handleDashboard renders a simple dashboard with iframes to the debug
// charts. A source query param is threaded through to the per-source
// charts.
func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	safeSource := html.EscapeString(source)
	qs := ""
	if source != "" {
		qs = "?source=" + url.QueryEscape(source)
	}
	safeQs := html.EscapeString(qs)

	doc := fmt.Sprintf(dashboardHTML, safeSource, safeQs, safeQs)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}
