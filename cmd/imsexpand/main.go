// Command imsexpand reconstructs the ion mobility trace of every row of a
// feature list and stores the expanded list in a sqlite results database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/mobility.report/internal/config"
	"github.com/banshee-data/mobility.report/internal/db"
	"github.com/banshee-data/mobility.report/internal/httputil"
	"github.com/banshee-data/mobility.report/internal/ims/l4features"
	"github.com/banshee-data/mobility.report/internal/ims/pipeline"
	"github.com/banshee-data/mobility.report/internal/ims/storage/sqlite"
	"github.com/banshee-data/mobility.report/internal/monitoring"
	"github.com/banshee-data/mobility.report/internal/timeutil"
	"github.com/banshee-data/mobility.report/internal/version"
)

var (
	input      = flag.String("input", "", "Feature list to expand (.json or .json.zst)")
	configPath = flag.String("config", "", "Expander config JSON (defaults apply when empty)")
	dbPath     = flag.String("db", "mobility.db", "Results database path")
	listen     = flag.String("listen", "", "Debug HTTP listen address; when set, keeps serving after the run until interrupted")
	workers    = flag.Int("workers", 0, "Override worker_count from the config")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println("imsexpand", version.String())
		return
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	monitoring.SetLogger(log.Printf)
	log.Printf("imsexpand %s", version.String())

	if *input == "" {
		log.Fatal("-input is required")
	}

	cfg := config.DefaultExpanderConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadExpanderConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *workers > 0 {
		cfg.WorkerCount = workers
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid -workers: %v", err)
		}
	}

	source, err := l4features.LoadFeatureList(*input)
	if err != nil {
		log.Fatalf("failed to load feature list: %v", err)
	}
	log.Printf("loaded feature list %q: %d rows, %d raw files", source.Name, source.NumRows(), len(source.RawFiles))

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open results database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	expander := pipeline.NewExpander(source, pipeline.Options{Config: cfg})
	runs := sqlite.NewRunStore(database.DB)
	params, err := json.Marshal(cfg)
	if err != nil {
		log.Fatalf("failed to encode run parameters: %v", err)
	}
	if err := runs.SaveRun(expander.State(), params); err != nil {
		log.Fatalf("failed to record run: %v", err)
	}

	var wg sync.WaitGroup
	if *listen != "" {
		mux := http.NewServeMux()
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("failed to attach admin routes: %v", err)
		}
		debug := tsweb.Debugger(mux)
		debug.Handle("expansion", "Mobility expansion status", pipeline.StatusHandler(expander))
		debug.HandleFunc("runs", "Recorded expansion runs", func(w http.ResponseWriter, r *http.Request) {
			if !httputil.ReadOnly(w, r) {
				return
			}
			recs, err := runs.ListRuns(r.URL.Query().Get("source"))
			if err != nil {
				httputil.InternalServerError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, recs)
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(ctx, mux)
		}()
	}

	runCtx, cancelTracking := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		trackRun(runCtx, runs, expander, cfg.GetProgressInterval())
	}()

	result, runErr := expander.Run(ctx)
	cancelTracking()
	if err := runs.SaveRun(expander.State(), nil); err != nil {
		log.Printf("failed to record run state: %v", err)
	}

	exitCode := 0
	if runErr != nil {
		log.Printf("expansion %s: %v", expander.Status(), runErr)
		exitCode = 1
	} else {
		if err := sqlite.NewFeatureListStore(database.DB).InsertFeatureList(result); err != nil {
			log.Printf("failed to store expanded feature list: %v", err)
			exitCode = 1
		} else {
			log.Printf("stored %q (%s): %d of %d rows expanded",
				result.Name, result.ID, result.NumRows(), source.NumRows())
		}
	}

	if *listen != "" && ctx.Err() == nil {
		log.Printf("run complete; serving debug routes on %s until interrupted", *listen)
		<-ctx.Done()
	}
	stop()
	wg.Wait()
	database.Close()
	os.Exit(exitCode)
}

// trackRun saves the run state every interval until ctx is done.
func trackRun(ctx context.Context, runs *sqlite.RunStore, e *pipeline.Expander, interval time.Duration) {
	ticker := timeutil.RealClock{}.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			if err := runs.SaveRun(e.State(), nil); err != nil {
				log.Printf("failed to record run state: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func serve(ctx context.Context, mux *http.ServeMux) {
	server := &http.Server{
		Addr:    *listen,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("debug server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}
