// bitflipd - monitors a block of RAM for radiation-induced bit flips
//
// The daemon fills a buffer with a sentinel value and rescans it on a
// configurable cadence. Any deviation is a single-event upset on non-ECC
// memory and is recorded durably with timing and geolocation metadata.
//
//	bitflipd run        Run the detection daemon
//	bitflipd probe      Run the adaptive sizer once and print the result
//	bitflipd export     Export the SQLite archive as a JSON flip report
//	bitflipd version    Print the version
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"bitflipd/internal/config"
	"bitflipd/internal/detector"
	"bitflipd/internal/journal"
	"bitflipd/internal/logging"
	"bitflipd/internal/monitor"
	"bitflipd/internal/notify"
	"bitflipd/internal/report"
	"bitflipd/internal/sizer"
	"bitflipd/internal/store"
	"bitflipd/internal/sysmem"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "probe":
		cmdProbe(os.Args[2:])
	case "export":
		cmdExport(os.Args[2:])
	case "version", "-v", "--version":
		fmt.Println("bitflipd " + version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`bitflipd - RAM bit-flip (single-event upset) detector

Won't work on ECC memory: the whole point is that nothing corrects the
flip before the scan sees it. The chance of detection scales with how
much of your DRAM you give the detector.

USAGE:
    bitflipd <command> [options]

COMMANDS:
    run         Run the detection daemon
    probe       Run the adaptive sizer once, print the chosen size, exit
    export      Export the SQLite archive as a JSON flip report
    version     Print the version
    help        Show this help message

RUN OPTIONS:
    --config <path>     Config file (.toml, .yaml or .json)
    -m <size>           Memory to monitor: 200, 5kB, 2GB, 3Mb; 0 or
                        "auto" sizes automatically (default 1GB)
    -d <ms>             Delay between integrity checks (default 30000)
    --latitude <deg>    Latitude of this machine (required)
    --longitude <deg>   Longitude of this machine (required)
    --file <path>       Flip journal path (default bitflips.csv)
    --parallel          Fan scans out across all CPUs
    --archive <path>    Also mirror records into a SQLite archive
    --notify            Raise a desktop notification per detection
    --verbose           Per-check progress output
    --quiet             Only warnings and detections

Every detection is appended to the journal and fsynced before the
detector re-arms; a journal error stops the daemon rather than letting
events vanish silently.`)
}

// runFlags tracks which flags were set on the command line so they can
// override the config file.
type runFlags struct {
	fs *flag.FlagSet

	configPath string
	memory     string
	delayMs    int64
	latitude   string
	longitude  string
	journal    string
	parallel   bool
	archive    string
	notify     bool
	verbose    bool
	quiet      bool
	logLevel   string
	logFormat  string
}

func parseRunFlags(args []string) *runFlags {
	f := &runFlags{fs: flag.NewFlagSet("run", flag.ExitOnError)}
	f.fs.StringVar(&f.configPath, "config", "", "config file path")
	f.fs.StringVar(&f.memory, "m", config.DefaultMemory, "memory to monitor")
	f.fs.Int64Var(&f.delayMs, "d", config.DefaultDelayMs, "delay between checks (ms)")
	f.fs.StringVar(&f.latitude, "latitude", "", "latitude of this machine")
	f.fs.StringVar(&f.longitude, "longitude", "", "longitude of this machine")
	f.fs.StringVar(&f.journal, "file", config.DefaultJournalPath, "flip journal path")
	f.fs.BoolVar(&f.parallel, "parallel", false, "scan in parallel")
	f.fs.StringVar(&f.archive, "archive", "", "SQLite archive path")
	f.fs.BoolVar(&f.notify, "notify", false, "desktop notification per detection")
	f.fs.BoolVar(&f.verbose, "verbose", false, "per-check progress output")
	f.fs.BoolVar(&f.quiet, "quiet", false, "only warnings and detections")
	f.fs.StringVar(&f.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	f.fs.StringVar(&f.logFormat, "log-format", "", "log format (text|json)")
	f.fs.Parse(args)
	return f
}

// apply overlays explicitly-set flags onto the configuration.
func (f *runFlags) apply(cfg *config.Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "m":
			cfg.Detector.Memory = f.memory
		case "d":
			cfg.Detector.DelayBetweenChecksMs = f.delayMs
		case "latitude":
			cfg.Location.Latitude = f.latitude
		case "longitude":
			cfg.Location.Longitude = f.longitude
		case "file":
			cfg.Journal.Path = f.journal
		case "parallel":
			cfg.Detector.Parallel = f.parallel
		case "archive":
			cfg.Archive.Enabled = true
			cfg.Archive.Path = f.archive
		case "notify":
			cfg.Notify.Enabled = f.notify
		case "verbose":
			cfg.Logging.Verbose = f.verbose
		case "quiet":
			cfg.Logging.Level = "warn"
			cfg.Logging.Verbose = false
		case "log-level":
			cfg.Logging.Level = f.logLevel
		case "log-format":
			cfg.Logging.Format = f.logFormat
		}
	})
}

func cmdRun(args []string) {
	flags := parseRunFlags(args)

	var (
		cfg    *config.Config
		loader *config.Loader
	)
	if flags.configPath != "" {
		loader = config.NewLoader(flags.configPath)
		loaded, err := loader.Load()
		if err != nil {
			fatalf("Error loading config: %v", err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
		cfg.ApplyEnvOverrides()
	}

	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid configuration: %v", err)
	}

	log := mustLogger(&cfg.Logging)
	defer log.Close()
	slog.SetDefault(log.Logger)

	if loader != nil {
		watchConfig(loader, log)
		defer loader.Close()
	}

	if err := config.ProbeJournalPath(cfg.Journal.Path); err != nil {
		log.Error("journal path unusable", "path", cfg.Journal.Path, "error", err)
		os.Exit(1)
	}

	size, err := cfg.MemoryBytes()
	if err != nil {
		log.Error("bad memory size", "error", err)
		os.Exit(1)
	}
	if size == 0 {
		log.Info("determining detector size automatically")
		size = chooseSize(cfg, log)
	}

	var opts []detector.Option
	if cfg.Detector.Parallel {
		opts = append(opts, detector.WithWorkers(runtime.NumCPU()))
		log.Info("checking memory integrity in parallel", "workers", runtime.NumCPU())
	}

	mass, err := detector.New(cfg.Detector.SentinelValue, int(size), opts...)
	if err != nil {
		log.Error("detector allocation failed", "bytes", size, "error", err)
		os.Exit(1)
	}
	defer mass.Close()

	log.Info("using RAM as detector",
		"size", config.FormatBytes(size),
		"bits", 8*size)
	if !mass.Locked() {
		log.Warn("could not pin detector mass into RAM; pages may be swapped out",
			"hint", "raise RLIMIT_MEMLOCK or grant CAP_IPC_LOCK")
	}

	if cfg.Detector.DelayBetweenChecksMs == 0 {
		log.Info("will do continuous integrity checks")
	} else {
		log.Info("waiting between integrity checks",
			"delay_ms", cfg.Detector.DelayBetweenChecksMs)
	}

	flipLog, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		log.Error("cannot open journal", "error", err)
		os.Exit(1)
	}
	defer flipLog.Close()
	log.Info("logging bitflips", "path", flipLog.Path())

	sinks := []monitor.Sink{journalSink{flipLog}}

	var archive *store.Store
	if cfg.Archive.Enabled {
		archive, err = store.Open(cfg.Archive.Path)
		if err != nil {
			log.Error("cannot open archive", "error", err)
			os.Exit(1)
		}
		defer archive.Close()
		sinks = append(sinks, archiveSink{archive})
		log.Info("archiving detections", "path", archive.Path())
	}

	if cfg.Notify.Enabled {
		notifier, err := notify.New()
		if err != nil {
			log.Warn("desktop notifications unavailable", "error", err)
		} else {
			defer notifier.Close()
			sinks = append(sinks, &notifySink{notifier: notifier, log: log.Logger})
		}
	}

	loop := monitor.New(mass, monitor.MultiSink(sinks...), monitor.Config{
		DelayMs:   cfg.Detector.DelayBetweenChecksMs,
		Latitude:  cfg.Location.Latitude,
		Longitude: cfg.Location.Longitude,
	}, monitor.WithLogger(log.WithComponent("monitor").Logger))

	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		// Any record already appended is synced; an in-flight one may
		// be lost, which the durability contract allows.
		log.Info("shutting down", "signal", sig.String(), "total_checks", loop.TotalChecks())
	case err := <-errCh:
		log.Error("detection loop failed", "error", err)
		os.Exit(1)
	}
}

// chooseSize runs the adaptive sizer and exits on failure: sizing cannot
// proceed safely without live metrics.
func chooseSize(cfg *config.Config, log *logging.Logger) uint64 {
	s := sizer.New(sysmem.NewSystemProvider(), cfg.Detector.SentinelValue,
		sizer.Config{
			SwapDelta: cfg.Sizer.SwapDeltaBytes,
			FreeFloor: cfg.Sizer.FreeFloorBytes,
		},
		sizer.WithLogger(log.WithComponent("sizer").Logger))

	size, err := s.Choose()
	if err != nil {
		log.Error("automatic sizing failed", "error", err)
		os.Exit(1)
	}
	if size == 0 {
		log.Error("automatic sizing found no safe amount of memory")
		os.Exit(1)
	}
	log.Info("automatic sizing converged", "size", config.FormatBytes(size))
	return size
}

// watchConfig hot-reloads the presentation-only settings.
func watchConfig(loader *config.Loader, log *logging.Logger) {
	loader.OnChange(func(cfg *config.Config) {
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err == nil {
			if cfg.Logging.Verbose {
				level = slog.LevelDebug
			}
			log.SetLevel(level)
			log.Info("log level reloaded", "level", level.String())
		}
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config hot reload unavailable", "error", err)
		return
	}
	go func() {
		for err := range loader.Errors() {
			log.Warn("config reload", "error", err)
		}
	}()
}

func cmdProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	swapDelta := fs.String("swap-delta", "10MB", "swap growth at which a probe is rejected")
	freeFloor := fs.String("free-floor", "50MB", "available-memory floor")
	verbose := fs.Bool("verbose", false, "print per-probe accept/reject decisions")
	fs.Parse(args)

	logCfg := logging.DefaultConfig()
	if *verbose {
		logCfg.Level = slog.LevelDebug
	}
	log := mustLoggerFrom(logCfg)
	defer log.Close()

	delta, err := config.ParseSize(*swapDelta)
	if err != nil {
		fatalf("Bad --swap-delta: %v", err)
	}
	floor, err := config.ParseSize(*freeFloor)
	if err != nil {
		fatalf("Bad --free-floor: %v", err)
	}

	s := sizer.New(sysmem.NewSystemProvider(), 0,
		sizer.Config{SwapDelta: delta, FreeFloor: floor},
		sizer.WithLogger(log.Logger))

	size, err := s.Choose()
	if err != nil {
		fatalf("Sizing failed: %v", err)
	}

	fmt.Printf("%s (%d bytes)\n", config.FormatBytes(size), size)
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	archivePath := fs.String("archive", "bitflips.db", "SQLite archive path")
	outPath := fs.String("out", "", "output file (default stdout)")
	fs.Parse(args)

	if _, err := os.Stat(*archivePath); err != nil {
		fatalf("Archive not found: %v", err)
	}

	archive, err := store.Open(*archivePath)
	if err != nil {
		fatalf("Error opening archive: %v", err)
	}
	defer archive.Close()

	r, err := report.Build(archive)
	if err != nil {
		fatalf("Error building report: %v", err)
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fatalf("Error creating output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := r.WriteJSON(out); err != nil {
		fatalf("Error writing report: %v", err)
	}
}

// mustLogger builds the daemon logger from the logging config section.
func mustLogger(cfg *config.LoggingConfig) *logging.Logger {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		fatalf("Invalid log level: %v", err)
	}
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	format, err := logging.ParseFormat(cfg.Format)
	if err != nil {
		fatalf("Invalid log format: %v", err)
	}

	return mustLoggerFrom(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    cfg.Output,
		FilePath:  cfg.FilePath,
		Component: "bitflipd",
	})
}

func mustLoggerFrom(cfg *logging.Config) *logging.Logger {
	log, err := logging.New(cfg)
	if err != nil {
		fatalf("Error setting up logging: %v", err)
	}
	return log
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
