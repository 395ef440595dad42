package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/banshee-data/signature.capture/internal/capture"
	"github.com/banshee-data/signature.capture/internal/config"
	"github.com/banshee-data/signature.capture/internal/db"
	"github.com/banshee-data/signature.capture/internal/monitoring"
	"github.com/banshee-data/signature.capture/internal/serialport"
	"github.com/banshee-data/signature.capture/internal/storage"
	"github.com/banshee-data/signature.capture/internal/version"
)

var (
	configPath    = flag.String("config", "", "TOML configuration file (flags override it)")
	port          = flag.String("port", config.DefaultPort(), "Serial port the pad is connected to")
	baudRate      = flag.Int("baud_rate", serialport.DefaultBaudRate, "Serial baud rate")
	saveFolder    = flag.String("save_folder", config.DefaultOutputDir, "Directory signatures are saved to")
	interactive   = flag.String("interactive", "true", "Interactive mode (true/false)")
	defaultWidth  = flag.Int("default_width", 100, "Frame width used when the pad sends no DIM line")
	defaultHeight = flag.Int("default_height", 100, "Frame height used when the pad sends no DIM line")
	lineTimeout   = flag.Duration("line_timeout", capture.DefaultLineTimeout, "Maximum wait for each protocol line")
	dbPath        = flag.String("db", "", "SQLite capture ledger (empty disables it)")
	logFile       = flag.String("log_file", "", "Rotating JSON log file (empty disables it)")
	logLevel      = flag.String("log_level", "info", "Log level: trace, debug, info, warn or error")
	jsonStatus    = flag.Bool("json", false, "Print a final JSON status line on stdout")
	showVersion   = flag.Bool("version", false, "Print version and exit")
	historyLimit  = flag.Int("limit", 20, "Rows shown by the history subcommand")
)

// listPorts is replaced in tests.
var listPorts = serialport.ListPorts

// loadConfig starts from the config file, or the defaults, and applies every
// flag that was set explicitly on the command line.
func loadConfig(fs afero.Fs, flags *flag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(fs, *configPath); err != nil {
			return nil, err
		}
	}

	var ferr error
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "baud_rate":
			cfg.BaudRate = *baudRate
		case "save_folder":
			cfg.OutputDir = *saveFolder
		case "interactive":
			v, err := strconv.ParseBool(*interactive)
			if err != nil {
				ferr = fmt.Errorf("invalid -interactive value %q: want true or false", *interactive)
				return
			}
			cfg.Interactive = v
		case "default_width":
			cfg.DefaultWidth = *defaultWidth
		case "default_height":
			cfg.DefaultHeight = *defaultHeight
		case "line_timeout":
			cfg.LineTimeout = lineTimeout.String()
		case "db":
			cfg.DBPath = *dbPath
		case "log_file":
			cfg.LogFile = *logFile
		case "log_level":
			cfg.LogLevel = *logLevel
		}
	})
	if ferr != nil {
		return nil, ferr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// env holds the outside world a run talks to.
type env struct {
	opener serialport.Opener
	fs     afero.Fs
	clock  clockwork.Clock
	in     io.Reader
	out    io.Writer
}

// run opens the pad once, drives capture rounds and releases everything it
// opened before returning.
func run(ctx context.Context, cfg *config.Config, e env) (capture.Summary, error) {
	store := storage.NewStore(e.fs, cfg.OutputDir, e.clock)
	if err := store.EnsureDir(); err != nil {
		return capture.Summary{}, &capture.Error{Kind: capture.KindSaveImage, Op: "prepare", Err: err}
	}
	log.Debug().Str("dir", store.Dir()).Msg("saving signatures")

	options := []capture.Option{
		capture.WithPipeline(cfg.Pipeline()),
		capture.WithClock(e.clock),
		capture.WithReporter(capture.ReporterFunc(func(r capture.Result) {
			report(e.out, r)
		})),
	}

	if cfg.DBPath != "" {
		ledger, err := db.NewDB(cfg.DBPath)
		if err != nil {
			return capture.Summary{}, fmt.Errorf("failed to open capture ledger: %w", err)
		}
		defer ledger.Close()
		options = append(options, capture.WithLedger(ledger))
	}

	conn, err := serialport.Open(e.opener, cfg.Port, cfg.PortOptions(), e.clock)
	if err != nil {
		if ports, lerr := listPorts(); lerr == nil && len(ports) > 0 {
			log.Warn().Strs("available", ports).Msg("serial port not available")
		}
		return capture.Summary{}, &capture.Error{Kind: capture.KindConnection, Op: "open " + cfg.Port, Err: err}
	}
	defer conn.Close()

	o := capture.NewOrchestrator(conn, store, cfg.CaptureOptions(), options...)
	return o.Run(ctx, cfg.Mode(), capture.NewPrompt(e.in, e.out))
}

func report(w io.Writer, r capture.Result) {
	switch {
	case r.Err == nil:
		fmt.Fprintf(w, "Signature saved at: %s\n", r.Path)
	case errors.Is(r.Err, context.Canceled):
		fmt.Fprintln(w, "Capture interrupted.")
	default:
		fmt.Fprintf(w, "Capture failed (%s): %v\n", capture.KindOf(r.Err), r.Err)
	}
}

// status is the machine-readable line printed with -json.
type status struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Kind    string   `json:"kind,omitempty"`
	Files   []string `json:"files,omitempty"`
}

func writeStatus(w io.Writer, sum capture.Summary, err error) error {
	st := status{Status: "success", Message: "capture completed", Files: sum.Paths}
	switch {
	case err != nil:
		st.Status = "error"
		st.Message = err.Error()
		st.Kind = capture.KindOf(err).String()
	case sum.Interrupted:
		st.Message = "capture stopped by user"
	}
	return json.NewEncoder(w).Encode(st)
}

// history prints the newest ledger rows.
func history(ctx context.Context, path string, limit int, w io.Writer) error {
	if path == "" {
		return errors.New("history needs a ledger: set -db or db_path")
	}
	ledger, err := db.NewDB(path)
	if err != nil {
		return fmt.Errorf("failed to open capture ledger: %w", err)
	}
	defer ledger.Close()

	rows, err := ledger.RecentCaptures(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSERIAL\tSTATUS\tSAMPLES\tDETAIL")
	for _, c := range rows {
		detail := c.Path
		if c.Status != db.StatusSaved {
			detail = c.ErrorKind
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			c.StartedAt.Local().Format(time.DateTime), c.Serial, c.Status, c.Samples, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts, err := ledger.CountByStatus(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%d saved, %d failed, %d interrupted\n",
		counts[db.StatusSaved], counts[db.StatusFailed], counts[db.StatusInterrupted])
	return err
}

// subcommand runs history or migrate against the configured ledger.
func subcommand(ctx context.Context, cfg *config.Config, args []string, w io.Writer) error {
	switch args[0] {
	case "history":
		return history(ctx, cfg.DBPath, *historyLimit, w)
	case "migrate":
		return db.RunMigrateCommand(args[1:], cfg.DBPath, w)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [history | migrate <action>]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("signature"))
		return
	}

	osFs := afero.NewOsFs()
	cfg, err := loadConfig(osFs, flag.CommandLine)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	closer, err := monitoring.Setup(monitoring.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: os.Stderr,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	switch flag.Arg(0) {
	case "history", "migrate":
		err := subcommand(ctx, cfg, flag.Args(), os.Stdout)
		stop()
		closer.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if flag.NArg() > 0 {
		stop()
		closer.Close()
		flag.Usage()
		os.Exit(2)
	}

	sum, err := run(ctx, cfg, env{
		opener: serialport.OpenSerial,
		fs:     osFs,
		clock:  clockwork.NewRealClock(),
		in:     os.Stdin,
		out:    os.Stdout,
	})
	stop()

	if *jsonStatus {
		if werr := writeStatus(os.Stdout, sum, err); werr != nil {
			log.Error().Err(werr).Msg("failed to write status line")
		}
	}
	if err != nil {
		log.Error().Err(err).Str("kind", capture.KindOf(err).String()).Msg("capture failed")
		closer.Close()
		os.Exit(1)
	}
	log.Info().Int("rounds", sum.Rounds).Int("saved", sum.Saved).Int("failed", sum.Failed).Msg("capture finished")
	closer.Close()
}
