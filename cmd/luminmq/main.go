package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"

	"github.com/0xhappyboy/luminmq/internal/admin"
	"github.com/0xhappyboy/luminmq/internal/broker"
	"github.com/0xhappyboy/luminmq/internal/config"
	"github.com/0xhappyboy/luminmq/internal/connreg"
	"github.com/0xhappyboy/luminmq/internal/dispatcher"
	"github.com/0xhappyboy/luminmq/internal/handler"
	"github.com/0xhappyboy/luminmq/internal/logging"
	"github.com/0xhappyboy/luminmq/internal/metrics"
	"github.com/0xhappyboy/luminmq/pkg/auditsink"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	app := &cli.App{
		Name:    "luminmq",
		Usage:   "lightweight message broker",
		Version: version,
		Commands: []*cli.Command{
			startCommand,
			versionCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "print the broker version",
	Action: func(c *cli.Context) error {
		fmt.Println(version)
		return nil
	},
}

var startCommand = &cli.Command{
	Name:  "start",
	Usage: "start the broker dispatcher and admin API",
	Action: runStart,
}

func runStart(c *cli.Context) error {
	bootLogger := logging.New("info", "console")

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	conns := connreg.New()

	var metricsSink *metrics.Metrics
	metricsSink = metrics.New()

	var audit broker.AuditSink
	if cfg.KafkaAuditBrokers != "" {
		brokers := splitBrokers(cfg.KafkaAuditBrokers)
		sink, err := auditsink.New(auditsink.Config{Brokers: brokers, Logger: logger})
		if err != nil {
			logger.Warn().Err(err).Msg("audit sink disabled: failed to initialize kafka producer")
		} else {
			audit = sink
			defer sink.Close()
		}
	}

	groups := broker.NewGroupRegistry(conns, cfg.MaxFrameBytes, cfg.TickInterval, metricsSink, audit, logger)
	groups.Create(cfg.DefaultBindGroup, broker.Cluster)
	groups.InsertChannel(cfg.DefaultBindGroup, cfg.DefaultBindTopic, broker.ChannelPull)

	h := handler.New(groups, conns, cfg.MaxFrameBytes, metricsSink, logger)

	d, err := dispatcher.New(dispatcher.Config{
		Addr:             cfg.Addr,
		MaxFrameBytes:    cfg.MaxFrameBytes,
		DefaultBindGroup: cfg.DefaultBindGroup,
		DefaultBindTopic: cfg.DefaultBindTopic,
		MaxConnections:   cfg.MaxConnections,
		AcceptsPerSecond: cfg.AcceptsPerSecond,
		AcceptBurst:      cfg.AcceptBurst,
	}, conns, h, metricsSink, logger)
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	sampleStop := make(chan struct{})
	metricsSink.StartSystemSampler(5*time.Second, sampleStop)

	adminServer := admin.New(cfg.AdminAddr, groups, conns, cfg.AdminJWTSecret, logger)

	stop := make(chan struct{})
	dispatcherErr := make(chan error, 1)
	go func() { dispatcherErr <- d.Run(stop) }()

	adminErr := make(chan error, 1)
	go func() { adminErr <- adminServer.Start() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info().Str("addr", cfg.Addr).Str("admin_addr", cfg.AdminAddr).Msg("luminmq broker started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-dispatcherErr:
		logger.Error().Err(err).Msg("dispatcher exited unexpectedly")
	case err := <-adminErr:
		logger.Error().Err(err).Msg("admin server exited unexpectedly")
	}

	close(stop)
	close(sampleStop)
	d.Close()
	groups.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("admin server shutdown error")
	}

	logger.Info().Msg("luminmq broker stopped")
	return nil
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}
