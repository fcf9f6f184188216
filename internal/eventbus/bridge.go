package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mfeshell/internal/logging"
)

// envelope is the wire format for bridged events.
type envelope struct {
	Source  string          `json:"source"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Bridge mirrors local bus events onto NATS subjects and relays inbound
// subjects back onto the local bus, letting multiple shell instances share
// one logical event plane.
//
// Subject layout: <prefix>.<event with ':' replaced by '.'>, e.g. the
// "auth:changed" event travels on "mfe.events.auth.changed".
type Bridge struct {
	bus     *Bus
	nc      *nats.Conn
	prefix  string
	source  string
	logger  *logging.Logger
	metrics *Metrics

	// relaying is nonzero while an inbound relay emit is on the stack,
	// so the outbound mirror does not republish relayed events.
	relaying atomic.Int32

	mu      sync.Mutex
	unsubs  []func()
	natsSub *nats.Subscription
	started bool
}

// NewBridge creates a bridge between bus and nc. prefix must be a valid
// NATS subject prefix such as "mfe.events".
func NewBridge(bus *Bus, nc *nats.Conn, prefix string, logger *logging.Logger) *Bridge {
	return &Bridge{
		bus:    bus,
		nc:     nc,
		prefix: prefix,
		source: uuid.New().String(),
		logger: logger.Named("bridge"),
	}
}

// SetMetrics attaches Prometheus metrics. Optional.
func (br *Bridge) SetMetrics(m *Metrics) {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.metrics = m
}

// Start begins mirroring the named local events outbound and relaying all
// inbound subjects under the prefix. Calling Start twice is an error.
func (br *Bridge) Start(events ...string) error {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.started {
		return fmt.Errorf("bridge already started")
	}

	for _, event := range events {
		br.unsubs = append(br.unsubs, br.bus.On(event, br.mirror))
	}

	sub, err := br.nc.Subscribe(br.prefix+".>", br.relay)
	if err != nil {
		for _, unsub := range br.unsubs {
			unsub()
		}
		br.unsubs = nil
		return fmt.Errorf("failed to subscribe to %s.>: %w", br.prefix, err)
	}
	br.natsSub = sub
	br.started = true
	return nil
}

// Close stops mirroring and relaying. The NATS connection itself is owned
// by the caller and left open.
func (br *Bridge) Close() error {
	br.mu.Lock()
	defer br.mu.Unlock()
	for _, unsub := range br.unsubs {
		unsub()
	}
	br.unsubs = nil
	if br.natsSub != nil {
		if err := br.natsSub.Unsubscribe(); err != nil {
			return fmt.Errorf("failed to unsubscribe: %w", err)
		}
		br.natsSub = nil
	}
	br.started = false
	return nil
}

// mirror publishes a locally emitted event to NATS.
func (br *Bridge) mirror(event string, payload any) {
	if br.relaying.Load() > 0 {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		br.logger.Warn(context.Background(), "event payload not serializable, dropping from bridge",
			zap.String("event", event), zap.Error(err))
		return
	}

	data, err := json.Marshal(envelope{Source: br.source, Event: event, Payload: raw})
	if err != nil {
		br.logger.Warn(context.Background(), "failed to marshal bridge envelope",
			zap.String("event", event), zap.Error(err))
		return
	}

	if err := br.nc.Publish(br.subject(event), data); err != nil {
		br.logger.Warn(context.Background(), "failed to publish bridged event",
			zap.String("event", event), zap.Error(err))
		return
	}
	if br.metrics != nil {
		br.metrics.BridgedOutTotal.Inc()
	}
}

// relay re-emits an inbound NATS message on the local bus.
func (br *Bridge) relay(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		br.logger.Warn(context.Background(), "malformed bridge envelope, dropping",
			zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if env.Source == br.source {
		return
	}

	var payload any
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			br.logger.Warn(context.Background(), "malformed bridge payload, dropping",
				zap.String("event", env.Event), zap.Error(err))
			return
		}
	}

	if br.metrics != nil {
		br.metrics.BridgedInTotal.Inc()
	}

	br.relaying.Add(1)
	defer br.relaying.Add(-1)
	br.bus.Emit(env.Event, payload)
}

// subject maps an event name to its NATS subject.
func (br *Bridge) subject(event string) string {
	return br.prefix + "." + strings.ReplaceAll(event, ":", ".")
}
