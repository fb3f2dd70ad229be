// Command wakewatch watches a depth sensor pointed at a bed and fades the
// alarm out as the sleeper gets up.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/wakewatch/internal/api"
	"github.com/banshee-data/wakewatch/internal/config"
	"github.com/banshee-data/wakewatch/internal/db"
	"github.com/banshee-data/wakewatch/internal/depth"
	"github.com/banshee-data/wakewatch/internal/monitoring"
	"github.com/banshee-data/wakewatch/internal/motion"
	"github.com/banshee-data/wakewatch/internal/sensor"
	"github.com/banshee-data/wakewatch/internal/session"
	"github.com/banshee-data/wakewatch/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to tuning config JSON (defaults apply to anything omitted)")
	sourceKind  = flag.String("source", "serial", "Frame source: serial, replay, or synthetic")
	port        = flag.String("port", "", "Serial device (empty auto-detects)")
	baud        = flag.Int("baud", sensor.DefaultBaudRate, "Serial baud rate")
	replayPath  = flag.String("replay", "", "Replay file for -source replay")
	replayRate  = flag.Float64("replay-rate", depth.DefaultFrameRate, "Replay pace in frames per second (0 = unpaced)")
	recordPath  = flag.String("record", "", "Tee delivered frames into this replay file")
	listen      = flag.String("listen", ":8080", "HTTP listen address (empty disables the API)")
	dbPath      = flag.String("db", "wakewatch.db", "Session history database (empty disables history)")
	retainDays  = flag.Int("retain-days", 90, "Delete history older than this many days at startup (0 keeps everything)")
	rearm       = flag.Bool("rearm", false, "Start a new session after each one ends")
	rearmDelay  = flag.Duration("rearm-delay", 5*time.Second, "Pause between sessions with -rearm")
	logFile     = flag.String("log-file", "", "Also write the ops log to this rotating file")
	debugLog    = flag.Bool("debug", false, "Log detector and sensor diagnostics")
	traceLog    = flag.Bool("trace", false, "Log per-frame telemetry (very verbose)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run holds the whole program so deferred closes happen before the exit code
// reaches os.Exit.
func run(args []string) int {
	flag.CommandLine.Init(flag.CommandLine.Name(), flag.ContinueOnError)
	if err := flag.CommandLine.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Println(version.String())
		return 0
	}

	opsFile := monitoring.NewRotatingFile(monitoring.RotatingFileOptions{Path: *logFile})
	if opsFile != nil {
		defer opsFile.Close()
		log.SetOutput(monitoring.Tee(os.Stderr, opsFile))
	}
	configureStreams(log.Writer(), *debugLog, *traceLog)
	log.Printf("%s starting", version.String())

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Printf("failed to load config: %v", err)
			return 1
		}
	}
	detector := motion.DetectorConfigFromTuning(tuning)
	if err := detector.Validate(); err != nil {
		log.Printf("invalid detector config: %v", err)
		return 1
	}

	kind, err := sensor.ParseKind(*sourceKind)
	if err != nil {
		log.Print(err)
		return 1
	}
	path := *port
	if kind == sensor.KindReplay {
		if *replayPath == "" {
			log.Print("-replay is required with -source replay")
			return 1
		}
		path = *replayPath
	}

	a := &app{
		detector: *detector,
		source: sensor.Options{
			Kind:       kind,
			Path:       path,
			Port:       sensor.PortOptions{BaudRate: *baud},
			Resolution: detector.Resolution,
			FrameRate:  tuning.GetFrameRate(),
			ReplayRate: *replayRate,
			RecordPath: *recordPath,
			MinDepthMM: int32(tuning.GetMinDepthMM()),
			MaxDepthMM: int32(tuning.GetMaxDepthMM()),
		},
		recordProgress: tuning.GetRecordProgress(),
		tracker:        &session.Tracker{},
		hub:            api.NewHub(0),
	}

	if *dbPath != "" {
		store, err := db.NewDB(*dbPath)
		if err != nil {
			log.Printf("failed to open database: %v", err)
			return 1
		}
		defer store.Close()
		a.store = store
		if *retainDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -*retainDays)
			if n, err := store.DeleteSessionsBefore(context.Background(), cutoff); err != nil {
				log.Printf("failed to prune history: %v", err)
			} else if n > 0 {
				log.Printf("pruned %d sessions older than %d days", n, *retainDays)
			}
		}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listen != "" {
		srv := api.NewServer(a.tracker, a.hub, a.detector)
		if a.store != nil {
			srv.WithHistory(a.store)
		}
		mux := srv.ServeMux()
		if a.store != nil {
			if err := a.store.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach admin routes: %v", err)
				return 1
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := api.Start(ctx, *listen, api.LoggingMiddleware(mux)); err != nil {
				log.Printf("HTTP server failed: %v", err)
				stop()
			}
		}()
	}

	exitCode := 0
	for {
		reason, err := a.runSession(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("session failed: %v", err)
		}
		if reason == session.ReasonSourceLost && !*rearm {
			exitCode = 1
		}
		if !*rearm || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(*rearmDelay):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	stop()
	a.hub.Close()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return exitCode
}

// configureStreams routes the package log streams: ops always, diag and
// trace on request.
func configureStreams(w io.Writer, debug, trace bool) {
	var diagW, traceW io.Writer
	if debug || trace {
		diagW = w
	}
	if trace {
		traceW = w
	}
	motion.SetLogWriters(w, diagW, traceW)
	sensor.SetLogWriters(w, diagW, traceW)
}
