// Command msgq sends to and receives from named queues on a RabbitMQ or SQS backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jacklaaa89/msgq"
	"github.com/jacklaaa89/msgq/config"
	"github.com/jacklaaa89/msgq/metrics"
)

var (
	configPath  string
	backendName string
	metricsAddr string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "msgq",
		Short:        "Send to and receive from named message queues",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "backend override, rabbitmq or sqs")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on, e.g. :9090")

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(receiveCmd())
	return rootCmd
}

// loadConfig reads the configuration file (if any) and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}

	if backendName != "" {
		cfg.Backend = config.Backend(backendName)
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	return cfg, cfg.Validate()
}

func sendCmd() *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "send --queue QUEUE PAYLOAD",
		Short: "Send a single payload to a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			b, err := newBackend(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer b.close() //nolint:errcheck

			return b.producer.Send(ctx, queue, args[0])
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "queue to send to")
	_ = cmd.MarkFlagRequired("queue")
	return cmd
}

func receiveCmd() *cobra.Command {
	var queues []string

	cmd := &cobra.Command{
		Use:   "receive --queue QUEUE [--queue QUEUE...]",
		Short: "Print payloads received from one or more queues until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			// a single cancellation signal is shared by every queue.
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			var observers []msgq.Observer
			if cfg.Metrics.Addr != "" {
				collector, stop, mErr := serveMetrics(ctx, cfg.Metrics.Addr, log)
				if mErr != nil {
					return mErr
				}
				defer stop()
				observers = append(observers, collector.Observe)
			}
			obs := func(e msgq.Event) {
				for _, o := range observers {
					o(e)
				}
			}

			b, err := newBackend(ctx, cfg, log, obs)
			if err != nil {
				return err
			}
			defer b.close() //nolint:errcheck

			c := msgq.NewConsumer(b.delivery, msgq.WithLogger(log), msgq.WithObserver(obs))
			return receive(ctx, c, queues, printer(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringArrayVar(&queues, "queue", nil, "queue to receive from, repeatable")
	_ = cmd.MarkFlagRequired("queue")
	return cmd
}

// receive subscribes handler to every queue and returns once every subscription
// has been torn down.
func receive(ctx context.Context, c *msgq.Consumer, queues []string, handler msgq.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	for _, q := range queues {
		q := q
		g.Go(func() error {
			err := c.Receive(ctx, q, handler)
			if err != nil {
				// a failed subscribe stops every other queue.
				cancel()
			}
			return err
		})
	}

	err := g.Wait()
	c.Wait()
	return err
}

// printer writes each payload on its own line.
func printer(w io.Writer) msgq.Handler {
	var mu sync.Mutex
	return func(_ context.Context, body string) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := fmt.Fprintln(w, body)
		return err
	}
}

// serveMetrics exposes a metrics collector on addr until stop is called.
func serveMetrics(ctx context.Context, addr string, log *zap.Logger) (*metrics.Collector, func(), error) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))

	stop := func() {
		sCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sCtx)
	}
	return collector, stop, nil
}
