package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chrissnell/peaktree/internal/app"
	"github.com/chrissnell/peaktree/internal/log"
	"github.com/chrissnell/peaktree/internal/managers"
	"github.com/chrissnell/peaktree/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "configs/stations.toml", "Path to station profiles:\n\t\t\t  TOML: stations.toml\n\t\t\t  YAML: stations.yaml\n\t\t\t  SQLite: stations.db\n\t\t\t  Use 'config-convert' tool to convert TOML/YAML→SQLite")
	cfgBackend := flag.String("config-backend", "toml", "Configuration backend type: 'toml', 'yaml' or 'sqlite'")
	station := flag.String("station", "", "Only process gates of this station")
	input := flag.String("input", "", "Path to a msgpack spectra stream (required)")
	sqlitePath := flag.String("sqlite", "", "Store trees in this SQLite database")
	msgpackDir := flag.String("msgpack-dir", "", "Write msgpack tree files into this directory")
	timescale := flag.String("timescaledb", "", "Store trees in TimescaleDB using this connection string")
	workers := flag.Int("workers", 0, "Number of concurrent gate workers (default: one per CPU)")
	listen := flag.String("listen", "", "Serve status and metrics on this address while processing, e.g. :9100")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("peaktree %s\n", version)
		os.Exit(0)
	}

	if *input == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -input <spectra.msgpack> [-config stations.toml] [-msgpack-dir out/]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfgData, err := loadConfig(*cfgFile, *cfgBackend)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	opts := app.Options{
		Input:   *input,
		Station: *station,
		Workers: *workers,
		Listen:  *listen,
		Storage: managers.StorageOptions{
			SQLitePath:  *sqlitePath,
			MsgpackDir:  *msgpackDir,
			TimescaleDB: *timescale,
		},
	}
	if opts.Storage == (managers.StorageOptions{}) {
		log.Warnf("no sink configured; trees will be computed but not stored")
	}

	sum, err := app.New(cfgData, opts, log.GetSugaredLogger()).Run(context.Background())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warnf("run %s interrupted after %d gates", sum.RunID, sum.Gates)
		} else {
			log.Errorf("Application error: %v", err)
		}
		log.Sync()
		os.Exit(1)
	}
	if sum.Failed > 0 {
		log.Warnf("%d of %d gates failed, see the log for details", sum.Failed, sum.Gates)
	}
}

func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	var err error

	switch cfgBackend {
	case "toml":
		provider = config.NewTOMLProvider(filename)
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		provider, err = config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'toml', 'yaml' or 'sqlite'", cfgBackend)
	}
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	return cfgData, nil
}
