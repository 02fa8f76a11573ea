package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracyhatemice/orderwatch/internal/config"
	"github.com/tracyhatemice/orderwatch/internal/poller"
	"github.com/tracyhatemice/orderwatch/internal/receiver"
)

var (
	classifySenders  []string
	classifyLookback int
	classifyLevel    string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [mbox file]",
	Short: "Classify the notifications in an mbox archive and print the summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger(classifyLevel, "text")

		senders := classifySenders
		if len(senders) == 0 {
			senders = config.DefaultSenders
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return classifyMbox(ctx, cmd.OutOrStdout(), args[0], senders, classifyLookback, logger)
	},
}

func init() {
	classifyCmd.Flags().StringSliceVar(&classifySenders, "sender", nil, "sender address or domain to accept (repeatable, default amazon.pl,amazon.com)")
	classifyCmd.Flags().IntVar(&classifyLookback, "lookback-days", 0, "ignore messages older than this many days (0 keeps all)")
	classifyCmd.Flags().StringVar(&classifyLevel, "log-level", "warn", "log level: debug, info, warn or error")
}

func classifyMbox(ctx context.Context, w io.Writer, path string, senders []string, lookback int, logger *slog.Logger) error {
	recv := receiver.NewMbox(path, logger)
	defer recv.Close()

	p := poller.New(recv, poller.Options{Senders: senders, LookbackDays: lookback}, logger)
	summary, err := p.Poll(ctx)
	if err != nil {
		return err
	}
	return printJSON(w, summary)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
