package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chrissnell/peaktree/pkg/config"
)

func main() {
	var (
		srcFile    = flag.String("src", "", "Path to TOML or YAML station profiles (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Parse()

	if *srcFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -src <stations.toml|stations.yaml> -sqlite <stations.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*srcFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: source file does not exist: %s\n", *srcFile)
		os.Exit(1)
	}

	if _, err := os.Stat(*sqliteFile); err == nil {
		if !*force {
			fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", *sqliteFile)
			fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
			os.Exit(1)
		}
		if !*dryRun {
			if err := os.Remove(*sqliteFile); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing existing database: %v\n", err)
				os.Exit(1)
			}
		}
	}

	fmt.Printf("Converting station profiles to SQLite...\n")
	fmt.Printf("  Source: %s\n", *srcFile)
	fmt.Printf("  Target: %s\n", *sqliteFile)

	var src config.ConfigProvider
	switch strings.ToLower(filepath.Ext(*srcFile)) {
	case ".yaml", ".yml":
		src = config.NewYAMLProvider(*srcFile)
	default:
		src = config.NewTOMLProvider(*srcFile)
	}
	cfgData, err := src.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading station profiles: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("  Loaded %d stations\n", len(cfgData.Stations))
	printConfigSummary(cfgData)

	if *dryRun {
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	dst, err := config.NewSQLiteProvider(*sqliteFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating SQLite database: %v\n", err)
		os.Exit(1)
	}
	defer dst.Close()

	for i := range cfgData.Stations {
		if err := dst.SaveStation(&cfgData.Stations[i]); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving station %s: %v\n", cfgData.Stations[i].Name, err)
			os.Exit(1)
		}
	}

	// read back through the provider so the database is known to validate
	check, err := dst.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error verifying SQLite database: %v\n", err)
		os.Exit(1)
	}
	if len(check.Stations) != len(cfgData.Stations) {
		fmt.Fprintf(os.Stderr, "Error: wrote %d stations but read back %d\n", len(cfgData.Stations), len(check.Stations))
		os.Exit(1)
	}

	fmt.Printf("Conversion complete: %d stations written to %s\n", len(check.Stations), *sqliteFile)
}

func printConfigSummary(cfgData *config.ConfigData) {
	for _, name := range cfgData.Names() {
		p, _ := cfgData.Station(name)
		s := p.Settings
		fmt.Printf("    %-14s %-4s smooth=%-5s ldr=%-5t max_no_nodes=%d grid_time=%v\n",
			p.Name, p.Shortname, s.Smooth, s.LDR, s.MaxNoNodes, s.GridTime)
	}
}
