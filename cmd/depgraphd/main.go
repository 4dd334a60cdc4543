// Command depgraphd wires a store, the traversal engine, and the
// optional domain-stack components (archive, notify, transport) into
// a runnable process, grounded in the teacher's cmd/api entrypoint
// shape (flag + .env config, plain http.Server over h2c, graceful
// shutdown on signal).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"depgraph/internal/archive"
	"depgraph/internal/config"
	"depgraph/internal/graph"
	"depgraph/internal/notify"
	"depgraph/internal/store"
	"depgraph/internal/store/memstore"
	"depgraph/internal/store/pgstore"
	"depgraph/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("depgraphd: load config: %v", err)
	}

	st, err := newStore(cfg)
	if err != nil {
		log.Fatalf("depgraphd: init store: %v", err)
	}

	var opts []graph.EngineOption
	if cfg.Archive.Enabled {
		archiver, err := archive.New(archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			log.Fatalf("depgraphd: init archiver: %v", err)
		}
		opts = append(opts, graph.WithArchiver(archiver))
	}

	engine := graph.NewEngine(st, opts...)
	hub := notify.NewHub()

	srv := transport.New(cfg.Port, engine, hub, cfg.Metrics.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("depgraphd: listening on %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("depgraphd: server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("depgraphd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("depgraphd: http shutdown error: %v", err)
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		log.Printf("depgraphd: engine shutdown error: %v", err)
	}
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		return pgstore.Open(pgstore.Config{DSN: cfg.PostgresDSN})
	default:
		return memstore.New(), nil
	}
}
