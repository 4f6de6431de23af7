// Command server runs a seglog node: the segmented WAL behind a gRPC
// append/read/sync surface, with prometheus metrics and optional Kafka
// event publication.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"seglog/api/grpcserver"
	"seglog/checkpoint"
	"seglog/infra/kafka"
	"seglog/jobs/broadcaster"
	"seglog/service"
	"seglog/wal"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// ---------------- WAL ----------------

	w, err := wal.Open(wal.Options{
		DirPath:     cfg.Dir,
		SegmentSize: cfg.SegmentSize,
		BlockCache:  cfg.BlockCache,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("wal open failed")
	}
	log.Info().Str("dir", cfg.Dir).Uint32("active_segment", w.ActiveSegmentID()).Msg("wal opened")

	// ---------------- Checkpoint store ----------------

	store, err := checkpoint.Open(cfg.CheckpointDir)
	if err != nil {
		log.Fatal().Err(err).Msg("checkpoint store open failed")
	}

	// ---------------- Kafka ----------------

	var notifier *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		notifier = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NoticeTopic)
	}

	// ---------------- Service ----------------

	metrics := service.NewMetrics(prometheus.DefaultRegisterer)
	svc := service.NewLogService(log, w, store, notifier, metrics)
	defer svc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---------------- Background jobs ----------------

	if len(cfg.Kafka.Brokers) > 0 {
		bc, err := broadcaster.New(store, cfg.Kafka.Brokers, cfg.Kafka.SegmentTopic, 2*time.Second, log)
		if err != nil {
			log.Fatal().Err(err).Msg("broadcaster init failed")
		}
		defer bc.Close()
		go bc.Run(ctx)
	}

	// ---------------- Metrics ----------------

	mlis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("metrics listen failed")
	}
	log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
	go serveMetrics(ctx, mlis, log)

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("listen failed")
	}
	grpcSrv := grpc.NewServer()
	grpcserver.Register(grpcSrv, grpcserver.NewServer(svc))

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		grpcSrv.GracefulStop()
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("grpc listening")
	if err := grpcSrv.Serve(lis); err != nil {
		log.Fatal().Err(err).Msg("grpc server exited")
	}
}

// serveMetrics runs the prometheus endpoint on lis until ctx is cancelled.
func serveMetrics(ctx context.Context, lis net.Listener, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server exited")
	}
}
