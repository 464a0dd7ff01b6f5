// Package main provides the subhub server executable with HTTP API, WebSocket
// endpoint and background delivery task.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/coregx/subhub"
	subhubnats "github.com/coregx/subhub/adapters/nats"
	"github.com/coregx/subhub/adapters/relica"
	"github.com/coregx/subhub/cmd/subhub-server/internal/api"
	"github.com/coregx/subhub/cmd/subhub-server/internal/config"
	"github.com/coregx/subhub/model"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SimpleLogger implements subhub.Logger for standard logging.
type SimpleLogger struct{}

func (l *SimpleLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[DEBUG] "+format, args...)
}
func (l *SimpleLogger) Infof(format string, args ...interface{}) {
	log.Printf("[INFO] "+format, args...)
}
func (l *SimpleLogger) Warnf(format string, args ...interface{}) {
	log.Printf("[WARN] "+format, args...)
}
func (l *SimpleLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}
func (l *SimpleLogger) Info(message string) {
	log.Printf("[INFO] %s", message)
}

// logGateway delivers by logging; deployments plug their own transport in.
type logGateway struct {
	logger subhub.Logger
}

func (g *logGateway) Deliver(_ context.Context, sub model.Snapshot, messages []model.TopicMessage) error {
	g.logger.Infof("Delivered %d message(s) to sk=%s (%s)", len(messages), sub.SubKey, sub.DeliveryMethod)
	return nil
}

func main() {
	log.Println("Starting subhub server v0.1.0...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded:")
	log.Printf("   Server: %s:%d (id=%d)", cfg.Server.Host, cfg.Server.Port, cfg.Server.ID)
	log.Printf("   Database: %s (%s:%d)", cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port)
	if cfg.NATS.URL != "" {
		log.Printf("   Fan-out: %s (prefix %s)", cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	} else {
		log.Printf("   Fan-out: disabled")
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Failed to close database: %v", closeErr)
		}
	}()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Database connection established")

	logger := &SimpleLogger{}

	stores := relica.NewStoresWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	log.Println("Stores initialized (Relica adapters)")

	registry := subhub.NewRegistry()
	if err := warmRegistry(context.Background(), registry, stores); err != nil {
		log.Fatalf("Failed to warm registry: %v", err)
	}
	log.Println("Registry warmed from durable store")

	transient := subhub.NewTransientStore()
	binder := subhub.NewBinder(stores.Queue, transient, logger)
	locks := subhub.NewLockRegistry(time.Duration(cfg.Engine.LockTimeout) * time.Second)

	// Fan-out wiring: announcer publishes local changes, listener folds in
	// remote ones.
	var announcer subhub.Announcer = subhub.NoopAnnouncer{}
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer nc.Close()

		announcer = subhubnats.NewAnnouncer(nc, cfg.NATS.SubjectPrefix)
		applier := subhub.NewApplier(registry, cfg.Server.ID, os.Getpid(), logger)
		listener, err := subhubnats.NewListener(nc, cfg.NATS.SubjectPrefix, applier, logger)
		if err != nil {
			log.Fatalf("Failed to start fan-out listener: %v", err)
		}
		defer func() {
			if closeErr := listener.Close(); closeErr != nil {
				log.Printf("Failed to close fan-out listener: %v", closeErr)
			}
		}()
		log.Println("Fan-out bus connected")
	}

	coordinator, err := subhub.NewCoordinator(
		subhub.WithStores(stores.Subscription, stores.Queue, transient),
		subhub.WithRegistry(registry),
		subhub.WithLocks(locks),
		subhub.WithAnnouncer(announcer),
		subhub.WithBinder(binder),
		subhub.WithServerIdentity(cfg.Server.ID, os.Getpid()),
		subhub.WithCoordinatorLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create coordinator: %v", err)
	}
	log.Println("Coordinator created")

	publisher, err := subhub.NewPublisher(
		subhub.WithPublisherStores(stores.Queue, transient),
		subhub.WithPublisherRegistry(registry),
		subhub.WithPublisherLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create publisher: %v", err)
	}
	log.Println("Publisher created")

	task, err := subhub.NewDeliveryTask(
		subhub.WithDeliveryStores(stores.Queue, transient),
		subhub.WithDeliveryRegistry(registry),
		subhub.WithGateway(&logGateway{logger: logger}),
		subhub.WithDeliveryLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create delivery task: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go task.Run(ctx, time.Duration(cfg.Engine.DeliveryInterval)*time.Second)

	handler := api.NewHandler(coordinator, publisher, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/publish", handler.HandlePublish)
	mux.HandleFunc("/api/v1/subscribe", handler.HandleSubscribe)
	mux.HandleFunc("/api/v1/subscriptions/", handler.HandleUnsubscribe)
	mux.HandleFunc("/api/v1/endpoints/", handler.HandleUnsubscribeEndpoint)
	mux.HandleFunc("/api/v1/health", handler.HandleHealth)
	mux.HandleFunc("/ws", handler.HandleWebSocket)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", addr)
		log.Println("API Endpoints:")
		log.Println("   POST   /api/v1/publish")
		log.Println("   POST   /api/v1/subscribe")
		log.Println("   DELETE /api/v1/subscriptions/:subKey")
		log.Println("   DELETE /api/v1/endpoints/:id/subscriptions")
		log.Println("   GET    /api/v1/health")
		log.Println("   GET    /ws?topic=...")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	cancel() // Stop delivery task
	log.Println("Server stopped gracefully")
}

// warmRegistry loads active topics, endpoints and their subscriptions into
// the per-process registry. Fan-out events keep it converged from here on.
func warmRegistry(ctx context.Context, registry *subhub.Registry, stores *relica.Stores) error {
	topics, err := stores.Topic.ListActive(ctx)
	if err != nil && !subhub.IsNoData(err) {
		return err
	}
	topicNames := make(map[int64]string, len(topics))
	for _, t := range topics {
		registry.AddTopic(t)
		topicNames[t.ID] = t.Name
	}

	endpoints, err := stores.Endpoint.ListActive(ctx)
	if err != nil && !subhub.IsNoData(err) {
		return err
	}
	for _, e := range endpoints {
		registry.AddEndpoint(e)
	}

	for _, e := range endpoints {
		subs, err := stores.Subscription.ListByEndpoint(ctx, e.ID)
		if err != nil {
			return err
		}
		for _, s := range subs {
			if !s.IsActive {
				continue
			}
			registry.AddSubscription(s.Snapshot(topicNames[s.TopicID], e.Name))
		}
	}
	return nil
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger subhub.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}
