package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/pkg/logger"
	"github.com/jwalitptl/taskdesk-api/pkg/messaging"
	"github.com/jwalitptl/taskdesk-api/pkg/metrics"
)

const (
	// BroadcastChannel carries settings changes between API instances.
	BroadcastChannel = "permission_settings.changed"
	// NotifyChannel is the Postgres NOTIFY channel fired by the settings trigger.
	NotifyChannel = "permission_settings_changed"

	sourceLocal     = "local"
	sourceBroadcast = "broadcast"
	sourceNotify    = "notify"
)

type settingsChanged struct {
	Role model.Role `json:"role"`
}

type settingsChangedMessage struct {
	Type    string          `json:"type"`
	Payload settingsChanged `json:"payload"`
}

// Invalidator drops cached settings and tells peer instances to do the same.
type Invalidator struct {
	cache   *SettingsCache
	broker  messaging.Broker
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewInvalidator(cache *SettingsCache, broker messaging.Broker, m *metrics.Metrics, log *logger.Logger) *Invalidator {
	if broker == nil {
		broker = messaging.NopBroker{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Invalidator{
		cache:   cache,
		broker:  broker,
		metrics: m,
		logger:  log.With("permission_invalidation"),
	}
}

// SettingsChanged invalidates role locally and broadcasts the change.
// Broadcast failures are logged; peers still converge on the cache TTL.
func (i *Invalidator) SettingsChanged(ctx context.Context, role model.Role) {
	i.invalidate(role, sourceLocal)

	msg := messaging.Message{Type: BroadcastChannel, Payload: settingsChanged{Role: role}}
	if err := i.broker.Publish(ctx, BroadcastChannel, msg); err != nil {
		i.logger.Error(err, "failed to broadcast settings change", "role", string(role))
	}
}

func (i *Invalidator) invalidate(role model.Role, source string) {
	if role.Valid() {
		i.cache.Invalidate(role)
	} else {
		i.cache.InvalidateAll()
	}
	i.metrics.CacheInvalidations.WithLabelValues(source).Inc()
}

// HandleBroadcast applies one message received on BroadcastChannel.
func (i *Invalidator) HandleBroadcast(payload []byte) {
	var msg settingsChangedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		i.logger.Warn("dropping malformed settings broadcast", "error", err.Error())
		i.invalidate("", sourceBroadcast)
		return
	}
	i.invalidate(msg.Payload.Role, sourceBroadcast)
}

// HandleNotify applies one NOTIFY payload, which is the changed role.
func (i *Invalidator) HandleNotify(payload string) {
	i.invalidate(model.Role(payload), sourceNotify)
}

// ListenBroadcast subscribes to peer broadcasts until ctx is done.
func (i *Invalidator) ListenBroadcast(ctx context.Context) error {
	ch, err := i.broker.Subscribe(ctx, BroadcastChannel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", BroadcastChannel, err)
	}
	go func() {
		for payload := range ch {
			i.HandleBroadcast(payload)
		}
	}()
	return nil
}

// NotifyListener feeds Postgres NOTIFY events into an Invalidator.
type NotifyListener struct {
	dsn         string
	invalidator *Invalidator
	listener    *pq.Listener
	logger      *logger.Logger
}

func NewNotifyListener(dsn string, invalidator *Invalidator, log *logger.Logger) *NotifyListener {
	if log == nil {
		log = logger.Nop()
	}
	return &NotifyListener{
		dsn:         dsn,
		invalidator: invalidator,
		logger:      log.With("permission_notify"),
	}
}

// Start begins listening and processes notifications until ctx is done.
func (n *NotifyListener) Start(ctx context.Context) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			n.logger.Error(err, "settings listener error")
		}
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			n.logger.Warn("settings listener connection attempt failed, will retry")
		case pq.ListenerEventDisconnected:
			n.logger.Warn("settings listener disconnected, will attempt reconnect")
		case pq.ListenerEventReconnected:
			// notifications may have been missed while disconnected
			n.logger.Info("settings listener reconnected, flushing cache")
			n.invalidator.invalidate("", sourceNotify)
		}
	}

	n.listener = pq.NewListener(n.dsn, 10*time.Second, time.Minute, reportProblem)
	if err := n.listener.Listen(NotifyChannel); err != nil {
		n.listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}

	go n.process(ctx)
	n.logger.Info("listening for permission settings changes")
	return nil
}

func (n *NotifyListener) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case notification := <-n.listener.Notify:
			if notification == nil {
				// connection lost, handled by reportProblem
				continue
			}
			n.invalidator.HandleNotify(notification.Extra)
		case <-time.After(90 * time.Second):
			go n.listener.Ping()
		}
	}
}

// Close stops the listener.
func (n *NotifyListener) Close() error {
	if n.listener == nil {
		return nil
	}
	return n.listener.Close()
}
