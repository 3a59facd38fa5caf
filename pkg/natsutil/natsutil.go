// Package natsutil carries JSON messages over NATS with OpenTelemetry trace
// context in the message headers.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// DefaultRequestTimeout bounds Request when ctx carries no deadline.
const DefaultRequestTimeout = 5 * time.Second

// Publisher is the part of *nats.Conn used to send.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Subscriber is the part of *nats.Conn used to receive.
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Requester is the part of *nats.Conn used for request/reply.
type Requester interface {
	RequestMsgWithContext(ctx context.Context, m *nats.Msg) (*nats.Msg, error)
}

type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = nats.Header{}
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

func encode[T any](ctx context.Context, subject string, v T) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: encode %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return msg, nil
}

func decode[T any](msg *nats.Msg) (context.Context, T, error) {
	var v T
	err := json.Unmarshal(msg.Data, &v)
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
	return ctx, v, err
}

// Publish sends v as JSON on subject.
func Publish[T any](ctx context.Context, p Publisher, subject string, v T) error {
	msg, err := encode(ctx, subject, v)
	if err != nil {
		return err
	}
	if err := p.PublishMsg(msg); err != nil {
		return fmt.Errorf("natsutil: publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe decodes every message on subject into T and calls handler with
// the propagated trace context. Messages that fail to decode are logged and dropped.
func Subscribe[T any](s Subscriber, subject string, log *slog.Logger, handler func(context.Context, T)) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	return s.Subscribe(subject, func(msg *nats.Msg) {
		ctx, v, err := decode[T](msg)
		if err != nil {
			log.Warn("dropping malformed message", "subject", msg.Subject, "error", err)
			return
		}
		handler(ctx, v)
	})
}

// Handle is Subscribe for request/reply: the handler's result is sent back as
// JSON to the requester.
func Handle[Req, Resp any](s Subscriber, subject string, log *slog.Logger, handler func(context.Context, Req) Resp) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	return s.Subscribe(subject, func(msg *nats.Msg) {
		ctx, req, err := decode[Req](msg)
		if err != nil {
			log.Warn("dropping malformed request", "subject", msg.Subject, "error", err)
			return
		}
		data, err := json.Marshal(handler(ctx, req))
		if err != nil {
			log.Error("encode reply", "subject", msg.Subject, "error", err)
			return
		}
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(data); err != nil {
			log.Error("send reply", "subject", msg.Subject, "error", err)
		}
	})
}

// Request sends req on subject and decodes the reply into Resp.
func Request[Req, Resp any](ctx context.Context, r Requester, subject string, req Req) (Resp, error) {
	var zero Resp
	msg, err := encode(ctx, subject, req)
	if err != nil {
		return zero, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRequestTimeout)
		defer cancel()
	}
	reply, err := r.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return zero, fmt.Errorf("natsutil: request %s: %w", subject, err)
	}
	var out Resp
	if err := json.Unmarshal(reply.Data, &out); err != nil {
		return zero, fmt.Errorf("natsutil: decode reply %s: %w", subject, err)
	}
	return out, nil
}
