package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	mboxlib "github.com/emersion/go-mbox"
)

// MboxReceiver replays an exported mbox file. It applies the query the
// same way the POP3 receiver does.
type MboxReceiver struct {
	path   string
	logger *slog.Logger
}

// NewMbox creates a receiver reading the mbox file at path.
func NewMbox(path string, logger *slog.Logger) *MboxReceiver {
	return &MboxReceiver{
		path:   path,
		logger: logger,
	}
}

func (r *MboxReceiver) Fetch(ctx context.Context, q Query, fn func(Email) error) error {
	if err := q.Validate(); err != nil {
		return err
	}

	file, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	matched := 0
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read mbox message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			r.logger.Warn("skipping unreadable mbox message", "index", idx, "error", err)
			continue
		}

		info := readHeaderInfo(raw)
		if !q.Match(info.From, info.Date) {
			continue
		}

		msgID := info.MessageID
		if msgID == "" {
			msgID = fmt.Sprintf("mbox-%d", idx)
		}

		matched++
		if err := fn(Email{ID: msgID, Date: info.Date, Content: raw}); err != nil {
			return err
		}
	}

	r.logger.Info("replayed mbox", "path", r.path, "matched", matched)
	return nil
}

func (r *MboxReceiver) Close() error {
	return nil
}
