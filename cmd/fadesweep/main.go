// Command fadesweep scores detector tunings across a parameter grid.
// Offline mode replays labeled scenario recordings (see the generator
// tool) through a fresh tracker per grid point and reports agreement
// against the labels. Daemon mode applies each grid point to a running
// daemon through its params endpoint and samples the live verdict
// counters instead.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/fsutil"
	"github.com/banshee-data/fade.report/internal/httputil"
)

func main() {
	dir := flag.String("dir", "fade_sim", "directory holding scenario recordings and labels.json")
	out := flag.String("o", "sweep_results.csv", "output CSV path")
	daemonURL := flag.String("daemon", "", "sweep a running daemon at this base URL instead of recordings")
	wait := flag.Duration("wait", 3*time.Second, "observation window per grid point in daemon mode")
	fadeThresholds := flag.String("fade-threshold", "0.005,0.01,0.02", "fade threshold values (list or min:max:step)")
	blackLuminances := flag.String("black-luminance", "0.005,0.01,0.02", "black luminance threshold values (list or min:max:step)")
	blackDurations := flag.String("black-duration", "0.5,1.0,1.5", "required black duration values (list or min:max:step)")
	flag.Parse()

	grid, err := parseGrid(*fadeThresholds, *blackLuminances, *blackDurations)
	if err != nil {
		log.Fatal(err)
	}

	if *daemonURL != "" {
		client := httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second})
		if err := sweepDaemon(client, fsutil.OSFileSystem{}, *daemonURL, *out, grid, *wait); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := runSweep(fsutil.OSFileSystem{}, *dir, *out, grid, fade.DefaultAnalysisConfig()); err != nil {
		log.Fatal(err)
	}
}

func parseGrid(fadeThresholds, blackLuminances, blackDurations string) (sweepGrid, error) {
	ft, err := parseParamList(fadeThresholds)
	if err != nil {
		return sweepGrid{}, fmt.Errorf("-fade-threshold: %w", err)
	}
	bl, err := parseParamList(blackLuminances)
	if err != nil {
		return sweepGrid{}, fmt.Errorf("-black-luminance: %w", err)
	}
	bd, err := parseParamList(blackDurations)
	if err != nil {
		return sweepGrid{}, fmt.Errorf("-black-duration: %w", err)
	}
	return sweepGrid{fadeThresholds: ft, blackLuminances: bl, blackDurations: bd}, nil
}
