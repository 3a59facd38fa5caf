package indexing

import (
	"context"
	"log/slog"
	"time"

	"github.com/m1520n/rag-chatbot/pkg/natsutil"
)

const (
	// ProgressSubject carries a ProgressEvent for every job state change.
	ProgressSubject = "catalog.indexing.progress"
	// StartSubject accepts StartRequest messages and replies with StartReply.
	StartSubject = "catalog.indexing.start"
)

// ProgressEvent is a job state stamped with its publish time.
type ProgressEvent struct {
	JobState
	At time.Time `json:"at"`
}

// Notifier is told about every job state change. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, st JobState)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, JobState) {}

// NATSNotifier publishes progress events on ProgressSubject.
type NATSNotifier struct {
	pub natsutil.Publisher
	log *slog.Logger
}

func NewNATSNotifier(pub natsutil.Publisher, logger *slog.Logger) *NATSNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSNotifier{pub: pub, log: logger}
}

// Notify publishes st. Failures are logged; progress events are best effort.
func (n *NATSNotifier) Notify(ctx context.Context, st JobState) {
	ev := ProgressEvent{JobState: st, At: time.Now().UTC()}
	if err := natsutil.Publish(ctx, n.pub, ProgressSubject, ev); err != nil {
		n.log.Warn("publish indexing progress", "error", err)
	}
}

// StartRequest asks a remote pipeline to begin a rebuild.
type StartRequest struct {
	Source string `json:"source"`
}

// StartReply reports whether the rebuild was launched.
type StartReply struct {
	Started bool     `json:"started"`
	Error   string   `json:"error,omitempty"`
	State   JobState `json:"state"`
}

// HandleStart serves StartRequest messages.
func (p *Pipeline) HandleStart(ctx context.Context, req StartRequest) StartReply {
	p.log.Info("remote indexing request", "source", req.Source)
	if err := p.Start(ctx); err != nil {
		return StartReply{Error: err.Error(), State: p.Progress()}
	}
	return StartReply{Started: true, State: p.Progress()}
}
