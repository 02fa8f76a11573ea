package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/tracyhatemice/orderwatch/internal/config"
	"github.com/tracyhatemice/orderwatch/internal/poller"
	"github.com/tracyhatemice/orderwatch/internal/receiver"
	"github.com/tracyhatemice/orderwatch/internal/sensor"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	envFile    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "orderwatch",
		Short:         "Track Amazon order status from notification emails",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnv(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the configuration")

	rootCmd.AddCommand(runCmd, pollCmd, classifyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the mailbox on an interval and serve sensor states over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
		logger.Info("orderwatch starting",
			"protocol", cfg.Mailbox.Protocol,
			"host", cfg.Mailbox.Host,
			"senders", cfg.GetSenders(),
		)

		recv, err := newReceiver(cfg, logger)
		if err != nil {
			return err
		}
		defer recv.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		board := sensor.NewBoard()
		p := poller.New(recv, pollerOptions(cfg), logger)

		srv := &http.Server{
			Addr:              cfg.HTTP.GetListen(),
			Handler:           sensor.Handler(board, cfg.HTTP.CORSOrigins, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Run(ctx, board.Publish)
		}()
		go func() {
			defer wg.Done()
			logger.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "error", err)
				cancel()
			}
		}()

		<-ctx.Done()
		logger.Info("shutting down, waiting for poller to finish...")

		// Force exit on second signal.
		go func() {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			logger.Warn("forced shutdown")
			os.Exit(1)
		}()

		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}

		wg.Wait()
		logger.Info("orderwatch stopped")
		return nil
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run a single poll cycle and print the summary as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

		recv, err := newReceiver(cfg, logger)
		if err != nil {
			return err
		}
		defer recv.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		ctx, cancel = context.WithTimeout(ctx, cfg.PollTimeout())
		defer cancel()

		summary, err := poller.New(recv, pollerOptions(cfg), logger).Poll(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

func pollerOptions(cfg *config.Config) poller.Options {
	return poller.Options{
		Senders:      cfg.GetSenders(),
		LookbackDays: cfg.Mailbox.GetLookbackDays(),
		Interval:     cfg.PollInterval(),
		Timeout:      cfg.PollTimeout(),
	}
}

func newReceiver(cfg *config.Config, logger *slog.Logger) (receiver.Receiver, error) {
	m := cfg.Mailbox
	switch m.Protocol {
	case "pop3":
		return receiver.NewPOP3(
			m.Host, m.Port,
			m.Username, m.Password,
			m.UseTLS, logger,
		), nil
	case "imap":
		return receiver.NewIMAP(
			m.Host, m.Port,
			m.Username, m.Password,
			m.UseTLS, m.GetFolder(), logger,
		), nil
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", m.Protocol)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	if format == "pretty" {
		return slog.New(charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			Level:           charmlog.Level(lvl),
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		}))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
