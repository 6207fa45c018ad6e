// Command razord runs a Razor watercut analyzer headless: it measures,
// serves Prometheus metrics and a WebSocket stream, and publishes to MQTT
// when a broker is configured.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/embeddedlinuxer/razor/pkg/analyzer"
	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/counter"
	"github.com/embeddedlinuxer/razor/pkg/meter"
	"github.com/embeddedlinuxer/razor/pkg/sample"
	"github.com/embeddedlinuxer/razor/pkg/telemetry"
)

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		mockFlag   = flag.Bool("mock", false, "Use mocked counter instead of serial port")
		listenFlag = flag.String("listen", "", "Metrics and stream listen address (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *listenFlag != "" {
		cfg.Metrics.Listen = *listenFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := config.NewStore(cfg, *configFlag)
	var storeDone sync.WaitGroup
	storeDone.Add(1)
	go func() {
		defer storeDone.Done()
		store.Run(ctx)
	}()
	defer storeDone.Wait()

	var device counter.Device
	if *mockFlag {
		device = counter.NewMock(&cfg.Mock, cfg.Counter.Multiplier)
		log.Printf("Using mocked counter")
	} else {
		device = counter.New(cfg.Serial.Port, cfg.Serial.BaudRate)
		log.Printf("Using counter on %s", cfg.Serial.Port)
	}

	a, err := analyzer.New(store, device)
	if err != nil {
		log.Fatalf("Failed to create analyzer: %v", err)
	}
	log.Printf("Analyzer instance %s", a.ID())

	metrics := telemetry.NewMetrics(a.ID())
	stream := telemetry.NewStream()
	defer stream.Close()

	a.Meter().OnUpdate(func(m meter.Measurement) {
		metrics.Observe(m)
		stream.Broadcast(telemetry.TopicMeasurement, telemetry.NewPayload(a.ID(), m))
	})
	a.OnAverages(func(avg sample.Averages) {
		metrics.ObserveAverages(avg)
		stream.Broadcast(telemetry.TopicAverages, telemetry.NewAveragesPayload(a.ID(), avg))
	})

	if cfg.MQTT.Broker != "" {
		client, err := telemetry.Dial(cfg.MQTT)
		if err != nil {
			log.Printf("MQTT disabled: %v", err)
		} else {
			defer client.Disconnect(250)
			pub := telemetry.NewPublisher(client, cfg.MQTT, a.ID(), a)
			if err := pub.Start(); err != nil {
				log.Printf("MQTT commands disabled: %v", err)
			}
			defer pub.Stop()
			a.Meter().OnUpdate(pub.PublishMeasurement)
			a.OnAverages(pub.PublishAverages)
		}
	}

	if cfg.Metrics.Listen != "" {
		srv := newServer(cfg.Metrics.Listen, metrics, stream)
		go func() {
			log.Printf("Serving metrics and stream on %s", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := a.Run(ctx); err != nil {
		log.Printf("Analyzer stopped: %v", err)
		stop()
	}
}

func newServer(addr string, metrics *telemetry.Metrics, stream *telemetry.Stream) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/ws", stream)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
