package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Version = "v1.0.0"

// Global debug flag
var DebugMode bool

// Global start time for process uptime tracking
var StartTime time.Time

func main() {
	// Record start time for uptime tracking
	StartTime = time.Now()

	// Parse command line flags
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Set global debug mode - check environment variable first, then CLI flag
	DebugMode = *debug
	if debugEnv := os.Getenv("DEBUG"); debugEnv != "" {
		// Environment variable takes precedence
		DebugMode = debugEnv == "true" || debugEnv == "1" || debugEnv == "yes"
	}

	// Load configuration
	config, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if config.Logging.Debug {
		DebugMode = true
	}
	if DebugMode {
		log.Println("Debug mode enabled")
	}

	log.Printf("FT8 slot engine %s starting", Version)

	mode, err := GetModeDescriptor(config.Engine.Mode)
	if err != nil {
		log.Fatalf("Failed to resolve mode: %v", err)
	}

	metrics := NewPrometheusMetrics()
	bus := NewEventBus()

	// Logbook persists completed contacts and answers worked-before queries
	logbook, err := NewLogbook(config.Logbook.Path)
	if err != nil {
		log.Fatalf("Failed to open logbook: %v", err)
	}
	defer logbook.Close()
	logbook.Bind(bus)

	gateway := NewWorkedGateway(bus, time.Duration(config.Engine.WorkedQueryTimeoutMs)*time.Millisecond, metrics)

	// Slot timing grid
	slotClock, err := NewSlotClock(NewSystemClock(), bus, mode)
	if err != nil {
		log.Fatalf("Failed to create slot clock: %v", err)
	}

	// Slot metrics ride on the bus like every other consumer
	bus.Subscribe(EventSlotStart, func(ev Event) {
		if ev.Slot != nil {
			metrics.RecordSlotStart(ev.Slot.ModeName, ev.Slot.DriftMs)
		}
	})

	// Audio path: ring buffer -> per-window decode requests -> decode worker
	ring := NewAudioRing(12000, 4*mode.SlotMs)
	pipeline := NewDecodePipeline(bus, nil, 16, metrics)
	pipeline.Start()
	scheduler := NewSlotScheduler(bus, ring, pipeline, metrics)
	scheduler.Start()

	// One automaton per configured station
	operators := make(map[string]*RadioOperator)
	for i := range config.Operators {
		op := NewRadioOperator(config.Operators[i], bus, gateway, metrics)
		operators[op.ID()] = op
		op.Start()
		log.Printf("Operator %s: %s on %d Hz (%s)", op.ID(),
			config.Operators[i].MyCallsign, config.Operators[i].Frequency, config.Operators[i].Mode)
	}

	wsHandler := NewWebSocketHandler(bus, operators, metrics)

	// Optional MQTT mirror of contacts and transmit requests
	var mqttPublisher *MQTTPublisher
	if config.MQTT.Enabled {
		mqttPublisher, err = NewMQTTPublisher(&config.MQTT)
		if err != nil {
			log.Printf("MQTT: disabled after connect failure: %v", err)
		} else {
			mqttPublisher.Bind(bus)
			defer mqttPublisher.Disconnect()
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	if config.Prometheus.Enabled {
		mux.Handle(config.Prometheus.Path, promhttp.Handler())
	}
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		slot := slotClock.GetCurrentSlotInfo()
		status := map[string]any{
			"version":        Version,
			"uptime_seconds": int64(time.Since(StartTime).Seconds()),
			"mode":           mode.Name,
			"slot_ms":        mode.SlotMs,
			"clock_running":  slotClock.IsRunning(),
			"current_slot":   slot,
			"operators":      len(operators),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})
	mux.HandleFunc("/api/qsos", func(w http.ResponseWriter, r *http.Request) {
		records, err := logbook.Recent(100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	})

	var handler http.Handler = mux
	if config.Server.EnableCORS {
		handler = corsMiddleware(mux)
	}

	server := &http.Server{
		Addr:    config.Server.Listen,
		Handler: handler,
	}
	go func() {
		log.Printf("HTTP server listening on %s", config.Server.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	slotClock.Start()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")

	slotClock.Stop()
	for _, op := range operators {
		op.Stop()
	}
	scheduler.Stop()
	pipeline.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}

// corsMiddleware adds permissive CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
