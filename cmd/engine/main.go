package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"matchengine/internal/admin"
	"matchengine/internal/dispatcher"
	"matchengine/internal/engine"
	"matchengine/internal/protocol"
	"matchengine/internal/session"
	"matchengine/internal/supervisor"
	"matchengine/internal/telemetry"
)

func main() {
	bindAddr := envOr("ENGINE_BIND_ADDR", "0.0.0.0")
	port := envOrInt("ENGINE_PORT", 9000)
	adminAddr := os.Getenv("ENGINE_ADMIN_ADDR")
	adminToken := os.Getenv("ENGINE_ADMIN_TOKEN")
	statsDB := os.Getenv("ENGINE_STATS_DB")
	var corsOrigins []string
	if v := os.Getenv("ENGINE_ADMIN_CORS_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
		for i := range corsOrigins {
			corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
		}
	}

	var store *telemetry.Store
	if statsDB != "" {
		var err error
		store, err = telemetry.Open(statsDB)
		if err != nil {
			log.Fatalf("engine: failed to open stats db: %v", err)
		}
		defer store.Close()
	}

	e := engine.New(4096, 4096)
	d := dispatcher.New(e.Inbox())

	sup, attempts, err := supervisor.Listen(bindAddr, port, d)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	if store != nil {
		sup.OnConnect(func(id session.ID, remoteAddr string, kind protocol.Kind) {
			if err := store.RecordConnect(uint64(id), remoteAddr, kind.String()); err != nil {
				log.Printf("engine: %v", err)
			}
		})
		sup.OnDisconnect(func(id session.ID) {
			if err := store.RecordDisconnect(uint64(id)); err != nil {
				log.Printf("engine: %v", err)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())

	go e.Run(ctx)
	go d.Run(e.Events())
	go sup.Run(ctx)

	log.Printf("matching engine listening on %s (bound after %d attempt(s))", sup.Addr(), attempts)

	var adminHTTP *http.Server
	if adminAddr != "" {
		adminSrv, err := admin.New(e, d, sup, admin.Config{Token: adminToken, CORSOrigins: corsOrigins})
		if err != nil {
			log.Fatalf("engine: failed to build admin surface: %v", err)
		}
		adminHTTP = &http.Server{Addr: adminAddr, Handler: adminSrv.Router()}
		go func() {
			log.Printf("admin surface listening on %s", adminAddr)
			if err := adminHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("engine: admin surface error: %v", err)
			}
		}()
	}

	if store != nil {
		go snapshotLoop(ctx, e, sup, store)
	}

	quit := make(chan os.Signal, 2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Println("engine: shutdown signal received, draining in-flight requests")

	go func() {
		<-quit
		log.Println("engine: second signal received, forcing immediate exit")
		os.Exit(1)
	}()

	cancel()

	if adminHTTP != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		adminHTTP.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	log.Printf("engine: shutdown complete — requests_received=%d events_generated=%d",
		e.Stats().RequestsReceived.Load(), e.Stats().EventsGenerated.Load())
}

func snapshotLoop(ctx context.Context, e *engine.Engine, sup *supervisor.Supervisor, store *telemetry.Store) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := telemetry.Snapshot{
				RequestsReceived:  e.Stats().RequestsReceived.Load(),
				EventsGenerated:   e.Stats().EventsGenerated.Load(),
				SessionsConnected: sup.SessionCount(),
			}
			if err := store.RecordSnapshot(snap); err != nil {
				log.Printf("engine: stats snapshot: %v", err)
			}
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("engine: invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}
