package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pricegrid/taskcore/internal/api"
	"github.com/pricegrid/taskcore/internal/controller"
	"github.com/pricegrid/taskcore/internal/event"
	"github.com/pricegrid/taskcore/internal/execution"
	"github.com/pricegrid/taskcore/internal/history"
	"github.com/pricegrid/taskcore/internal/metrics"
	"github.com/pricegrid/taskcore/internal/middleware"
	"github.com/pricegrid/taskcore/internal/task"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()

	workers := 4
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			log.Fatalf("invalid WORKER_POOL_SIZE: %q", v)
		}
		workers = n
	}

	ctrl := controller.New(workers)
	metrics.UpdateActiveWorkers(workers)

	ctrl.AddListener(event.NewLogListener())
	ctrl.AddListener(metrics.NewListener())

	hub := event.NewWSHub()
	ctrl.AddListener(hub)

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		publisher, err := event.NewRedisPublisher(redisAddr, os.Getenv("EVENT_CHANNEL"))
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Printf("failed to close Redis publisher: %v", err)
			}
		}()
		ctrl.AddListener(publisher)
		log.Printf("Publishing events to Redis at %s", redisAddr)
	}

	if postgresDSN := os.Getenv("POSTGRES_DSN"); postgresDSN != "" {
		recorder, err := history.NewPostgresRecorder(postgresDSN)
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Printf("failed to close history recorder: %v", err)
			}
		}()
		ctrl.AddListener(history.NewListener(recorder))
		log.Printf("Recording task history to PostgreSQL")
	}

	if alertEmail := os.Getenv("ALERT_EMAIL"); alertEmail != "" {
		ctrl.AddListener(event.NewEmailNotifier(alertEmail))
		log.Printf("Sending failure alerts to %s", alertEmail)
	}

	apiHandler := api.NewAPI(ctrl, hub)
	registerWorkTypes(ctrl, apiHandler)

	go startMetricsCollector(ctrl)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", middleware.MetricsMiddleware(apiHandler))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		log.Printf("Server starting on :%s with %d workers", port, workers)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if err := ctrl.Shutdown(ctx); err != nil {
		log.Printf("controller shutdown: %v", err)
	}
}

// registerWorkTypes wires the demo work factories served over the API.
// Real deployments register their own pipelines here.
func registerWorkTypes(ctrl *controller.Controller, a *api.API) {
	checker := ctrl.Checker()

	a.RegisterWorkType("sleep", func(payload map[string]any) controller.WorkFunc {
		seconds := 10.0
		if v, ok := payload["seconds"].(float64); ok {
			seconds = v
		}
		steps := int(seconds * 10)

		return func(ec *execution.Context) (any, error) {
			for i := 0; i < steps; i++ {
				if !checker.Check(ec.TaskID()) {
					return nil, task.ErrAborted
				}
				time.Sleep(100 * time.Millisecond)
				checker.ReportProgress(ec.TaskID(), float64(i+1)/float64(steps)*100, "sleeping")
			}
			return "slept", nil
		}
	})

	a.RegisterWorkType("count", func(payload map[string]any) controller.WorkFunc {
		total := 100
		if v, ok := payload["total"].(float64); ok && v > 0 {
			total = int(v)
		}

		return func(ec *execution.Context) (any, error) {
			ec.SetItems(0, total)
			for i := 0; i < total; i++ {
				if !checker.Check(ec.TaskID()) {
					return nil, task.ErrAborted
				}
				time.Sleep(10 * time.Millisecond)
				ec.SetItems(i+1, total)
			}
			return total, nil
		}
	})
}
