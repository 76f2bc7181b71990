// Command hlsmuxd is the composition root: it loads vhost config, wires
// logging, the disk guard, the status feed and the controller manager,
// and serves the muxed segments/playlists over HTTP. Frame ingest
// (RTMP demuxing) is out of scope and left to a caller embedding this
// module; this binary only demonstrates the wiring and doubles as a
// static-file server for the segments it would receive.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"livehls/pkg/config"
	"livehls/pkg/controller"
	"livehls/pkg/diskguard"
	"livehls/pkg/logging"
	"livehls/pkg/statusfeed"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "hls.yaml", "path to vhost config YAML")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "hlsmuxd.db", "path to the bbolt log/state database")
	minFreeMB := flag.Uint64("min-free-mb", 256, "minimum free disk space required to open a segment, in MiB")
	cycleInterval := flag.Duration("cycle-interval", 5*time.Second, "controller idle-dispose poll interval")
	flag.Parse()

	cfgProvider, err := config.LoadYAMLFile(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := bolt.Open(*dbPath, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	logger := logging.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Start(ctx)
	go logger.ToStdout(ctx)

	sink, err := logging.NewBoltSink(db, "logs", 10000)
	if err != nil {
		return fmt.Errorf("open log sink: %w", err)
	}
	logFeed, _ := logger.Subscribe()
	go sink.Run(logFeed)

	disk := diskguard.New(*minFreeMB * 1024 * 1024)
	feed := statusfeed.New()

	mgr := controller.NewManager(cfgProvider, logger.Logf, disk, feed)
	go mgr.RunCycles(ctx, *cycleInterval)

	mux := http.NewServeMux()
	mux.Handle("/status/ws", feed.Handler())
	mux.Handle("/hls/", http.StripPrefix("/hls/", http.FileServer(http.Dir("."))))

	server := &http.Server{Addr: *addr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case sig := <-stop:
		logger.Logf(logging.LevelInfo, "hlsmuxd", "", "received %v, shutting down", sig)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Wait()
	return nil
}
