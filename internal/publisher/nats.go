package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"route-animator/internal/playback"
	"route-animator/internal/render"
)

// NATSPublisher streams render commands to NATS and accepts playback
// control messages. It implements render.Sink.
type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	logger      zerolog.Logger
	sub         *nats.Subscription
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// ControlHandler applies a decoded control message.
type ControlHandler func(cmd playback.Command) error

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics, logger zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("route-animator"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{
		nc:          nc,
		prefix:      subjectToken(prefix),
		logSubjects: logSubjects,
		metrics:     m,
		logger:      logger,
	}, nil
}

func (p *NATSPublisher) Close() {
	if p.sub != nil {
		_ = p.sub.Unsubscribe()
	}
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Publish sends cmd as JSON on the subject for its op.
func (p *NATSPublisher) Publish(cmd render.Command) error {
	subject := subjectFor(p.prefix, cmd.Op)
	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.logger.Debug().Str("subject", subject).Uint64("seq", cmd.Seq).Msg("nats publish")
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// SubscribeControl routes messages on <prefix>.control to h. Requests with a
// reply subject get {"ok":true} or {"error":"..."} back.
func (p *NATSPublisher) SubscribeControl(h ControlHandler) error {
	subject := p.prefix + ".control"
	sub, err := p.nc.Subscribe(subject, controlHandler(h, p.logger))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	p.sub = sub
	p.logger.Info().Str("subject", subject).Msg("listening for control messages")
	return nil
}

type reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func controlHandler(h ControlHandler, logger zerolog.Logger) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var r reply
		cmd, err := playback.DecodeCommand(msg.Data)
		if err == nil {
			err = h(cmd)
		}
		if err != nil {
			logger.Warn().Err(err).Str("subject", msg.Subject).Msg("control message rejected")
			r.Error = err.Error()
		} else {
			r.OK = true
		}
		if msg.Reply == "" {
			return
		}
		b, _ := json.Marshal(r)
		if err := msg.Respond(b); err != nil {
			logger.Warn().Err(err).Msg("control reply")
		}
	}
}

func subjectFor(prefix string, op render.Op) string {
	switch op {
	case render.OpProgress, render.OpState:
		return prefix + "." + string(op)
	default:
		return prefix + ".render." + subjectToken(string(op))
	}
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
