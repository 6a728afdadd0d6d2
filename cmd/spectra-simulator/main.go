// Package main writes synthetic Doppler spectra streams for testing peaktree.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chrissnell/peaktree/internal/ingest"
)

func main() {
	var (
		output   = flag.String("output", "spectra.msgpack", "Path of the stream to write")
		station  = flag.String("station", "limassol", "Station name stamped on every frame")
		start    = flag.String("start", "", "RFC3339 time of the first profile (default: now, truncated to the minute)")
		step     = flag.Duration("step", 5*time.Second, "Time between profiles")
		profiles = flag.Int("profiles", 60, "Number of profiles")
		gates    = flag.Int("gates", 100, "Range gates per profile")
		spacing  = flag.Float64("gate-spacing", 30, "Range gate spacing in metres")
		bins     = flag.Int("bins", 256, "Velocity bins per spectrum")
		vmax     = flag.Float64("vmax", 8, "Nyquist velocity in m/s")
		ldr      = flag.Float64("ldr", 0.01, "Linear depolarization of the signal; 0 omits the cross channel")
		jitter   = flag.Float64("jitter", 0.2, "Relative noise spread")
		seed     = flag.Int64("seed", 1, "Random seed")
	)
	flag.Parse()

	t0 := time.Now().UTC().Truncate(time.Minute)
	if *start != "" {
		var err error
		if t0, err = time.Parse(time.RFC3339, *start); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -start: %v\n", err)
			os.Exit(1)
		}
	}
	if *bins < 8 || *profiles < 1 || *gates < 1 {
		fmt.Fprintf(os.Stderr, "Error: need at least 8 bins, one profile and one gate\n")
		os.Exit(1)
	}

	e := ingest.NewEmulator(*seed)
	e.Bins = *bins
	e.VMin, e.VMax = -*vmax, *vmax
	e.LDR = *ldr
	e.Jitter = *jitter

	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := ingest.NewWriter(f)
	n := 0
	// one profile at a time keeps memory flat for long streams
	for p := 0; p < *profiles; p++ {
		for _, fr := range e.Profile(*station, t0.Add(time.Duration(p)*(*step)), *step, 1, *gates, *spacing) {
			if err := w.Write(fr); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing frame: %v\n", err)
				os.Exit(1)
			}
			n++
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d frames (%d profiles x %d gates) to %s\n", n, *profiles, *gates, *output)
}
