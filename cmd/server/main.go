package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bistro.ai/internal/persistence/journal"
	persistlog "bistro.ai/internal/persistence/log"
	"bistro.ai/internal/sim/catalogs"
	"bistro.ai/internal/sim/layout"
	"bistro.ai/internal/sim/order"
	"bistro.ai/internal/sim/present"
	"bistro.ai/internal/sim/tuning"
	"bistro.ai/internal/sim/world"
	"bistro.ai/internal/transport/natspub"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		plotsPath  = flag.String("plots", "", "path to plots.yaml (default: <configs>/plots.yaml)")
		disableDB  = flag.Bool("disable_journal", false, "run without the sqlite ticket journal (tickets do not survive a restart)")
		natsURL    = flag.String("nats", "", "NATS server url for ticket events (empty to disable)")
		natsSubj   = flag.String("nats_subject", natspub.TicketsSubject, "NATS subject for ticket events")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tune, err := tuning.Load(orDefault(*tuningPath, filepath.Join(*configDir, "tuning.yaml")))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	plots, err := layout.Load(orDefault(*plotsPath, filepath.Join(*configDir, "plots.yaml")))
	if err != nil {
		logger.Fatalf("load plots: %v", err)
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	eventLog := persistlog.NewEventLogger(*dataDir)
	defer eventLog.Close()
	journals := order.Journals{eventLog}

	var restore []order.Record
	var tickets *journal.SQLiteJournal
	if !*disableDB {
		tickets, err = journal.Open(filepath.Join(*dataDir, "journal.sqlite"))
		if err != nil {
			logger.Fatalf("open journal: %v", err)
		}
		defer tickets.Close()
		restore, err = tickets.LoadOpen(context.Background())
		if err != nil {
			logger.Fatalf("load open tickets: %v", err)
		}
		journals = append(journals, tickets)
	}

	var pub *natspub.Publisher
	if u := strings.TrimSpace(*natsURL); u != "" {
		pub, err = natspub.Connect(u, *natsSubj)
		if err != nil {
			logger.Fatalf("nats: %v", err)
		}
		defer pub.Close()
		journals = append(journals, pub)
	}

	w, err := world.New(world.Config{
		Tuning:  tune,
		Recipes: &cats.Recipes,
		Plots:   plots,
		Journal: journals,
		Restore: restore,
		Sinks:   []present.Sink{eventLog},
		Logger:  log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if len(restore) > 0 {
		logger.Printf("restored %d open tickets", len(restore))
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr: *addr,
		Handler: newMux(w, logger, muxOptions{
			Admin:    envBool("BISTRO_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
			Pprof:    envBool("BISTRO_ENABLE_PPROF_HTTP", false),
			Journal:  tickets,
			EventLog: eventLog,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
