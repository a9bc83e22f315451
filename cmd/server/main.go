package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"matchd/api/grpcserver"
	"matchd/config"
	"matchd/domain/events"
	"matchd/domain/orderbook"
	"matchd/domain/validation"
	"matchd/infra/holders"
	"matchd/infra/kafka"
	"matchd/infra/metrics"
	"matchd/infra/sequence"
	"matchd/infra/wal/entry"
	"matchd/infra/wal/exit"
	"matchd/jobs/broadcaster"
	"matchd/jobs/queuemonitor"
	"matchd/service"
	"matchd/service/execution"
	"matchd/snapshot"
)

func main() {
	var cfg config.Config
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := cfg.Log.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("matchd exited", zap.Error(err))
	}
	log.Info("matchd stopped")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	// ---------------- Reference data ----------------

	seed, err := holders.LoadSeed(cfg.SeedFile)
	if err != nil {
		return err
	}
	instruments := seed.AssetPairHolder()
	thresholds := seed.ThresholdHolder()

	books := orderbook.NewRegistry()
	balances := holders.NewBalances()
	midPrices := holders.NewMidPrices(cfg.Pipeline.MidPriceWindow)
	seq := sequence.New(events.Sequence{})

	m, err := metrics.New()
	if err != nil {
		return err
	}

	// ---------------- Persisted state ----------------

	store, err := exit.Open(cfg.StateDir())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	after, err := service.Restore(store, service.RestoreTarget{
		Books:     books,
		Balances:  balances,
		MidPrices: midPrices,
		Sequencer: seq,
	})
	if err != nil {
		return err
	}
	if after == 0 && seq.Current() == (events.Sequence{}) {
		balances.Set(seed.InitialBalances())
		log.Info("no persisted state, seed balances applied", zap.Int("balances", len(seed.Balances)))
	}

	// ---------------- Outbound ----------------

	var (
		notifier   service.Notifier
		publisher  service.Publisher
		bc         *broadcaster.Broadcaster
		rejections *kafka.Producer
		responses  *kafka.Producer
	)
	if cfg.Kafka.Enabled() {
		rejections = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.RejectionsTopic)
		defer func() { _ = rejections.Close() }()
		notifier = rejections

		responses = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ResponsesTopic)
		defer func() { _ = responses.Close() }()

		sp, err := broadcaster.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		bc = broadcaster.New(store, sp, broadcaster.Config{
			Topic:      cfg.Kafka.ExecutionsTopic,
			Interval:   cfg.Kafka.BroadcastInterval,
			BatchSize:  cfg.Kafka.BroadcastBatch,
			MaxRetries: cfg.Kafka.MaxRetries,
		}, m, log)
		defer func() { _ = bc.Close() }()
		publisher = bc
	} else {
		log.Warn("no kafka brokers configured, executions stay in the outbox")
	}

	// ---------------- Pipeline ----------------

	factory := execution.NewFactory(books, balances, instruments, cfg.Pipeline.OrderBookDepth, log)
	applier := service.NewApplier(books, balances, midPrices, seq, store, publisher, m, log)
	svc := service.NewOrderService(service.Deps{
		Factory:         factory,
		Books:           books,
		Validator:       validation.New(instruments),
		Balances:        balances,
		Thresholds:      thresholds,
		MidPrices:       midPrices,
		Applier:         applier,
		Notifier:        notifier,
		Metrics:         m,
		Log:             log,
		MaxCascadeDepth: cfg.Pipeline.MaxCascadeDepth,
	})

	if _, err := service.ReplayEntries(ctx, cfg.EntryWALDir(), after, svc, log); err != nil {
		return err
	}

	wal, err := entry.Open(entry.Config{
		Dir:             cfg.EntryWALDir(),
		SegmentSize:     cfg.WAL.SegmentSize,
		SegmentDuration: cfg.WAL.SegmentDuration,
		SyncEveryWrite:  cfg.WAL.SyncEveryWrite,
		Log:             log.Named("entry_wal"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = wal.Close() }()

	proc := service.NewProcessor(svc, wal, cfg.Pipeline.QueueSize, m, log)
	compactor := service.NewCompactor(wal, store, seq, cfg.Pipeline.CompactionInterval, log)
	monitor := queuemonitor.New(proc, cfg.Pipeline.QueueSizeLimit, cfg.Pipeline.QueueMonitorInterval, m, log)

	// ---------------- Servers ----------------

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.GRPCAddr)
	}
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(log.Named("grpc"))))
	grpcserver.RegisterMatchingServer(grpcSrv, grpcserver.NewServer(proc, snapshot.NewReader(books), balances, log))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcSrv)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	httpSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// ---------------- Run ----------------

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return proc.Run(ctx) })
	g.Go(func() error { return compactor.Run(ctx) })
	g.Go(func() error { return monitor.Run(ctx) })
	if bc != nil {
		g.Go(func() error { return bc.Run(ctx) })

		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.OrdersTopic,
			GroupID: cfg.Kafka.GroupID,
		}, proc, responses, log)
		defer func() { _ = consumer.Close() }()
		g.Go(func() error { return consumer.Run(ctx) })
	}
	g.Go(func() error {
		log.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		return errors.Wrap(grpcSrv.Serve(lis), "grpc serve")
	})
	g.Go(func() error {
		log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics serve")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		healthSrv.Shutdown()
		grpcSrv.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
