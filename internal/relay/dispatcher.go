package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bidline/internal/domain"
	"bidline/internal/metrics"
)

const (
	defaultInterval = 2 * time.Second
	defaultBatch    = 100
)

// Sink receives audit events in id order.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt domain.Event) error
}

// Store is the event log and cursor table the dispatcher reads from.
type Store interface {
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
	RelayCursor(ctx context.Context, sink string) (int64, bool, error)
	SetRelayCursor(ctx context.Context, sink string, id int64, updatedAt string) error
}

type route struct {
	sink   Sink
	filter eventFilter
}

// Dispatcher polls the event log and forwards new events to each sink.
// Every sink keeps its own persisted cursor, so a failing sink is retried
// from where it stopped on the next tick without holding back the others.
// A sink seen for the first time starts at the current end of the log.
type Dispatcher struct {
	Store    Store
	Interval time.Duration
	Batch    int
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time

	mu      sync.Mutex
	routes  []route
	cursors map[string]int64
}

func NewDispatcher(store Store, interval time.Duration, batch int) *Dispatcher {
	return &Dispatcher{Store: store, Interval: interval, Batch: batch, cursors: map[string]int64{}}
}

// Add registers sink for the listed event types; no types means all.
func (d *Dispatcher) Add(sink Sink, eventTypes []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, route{sink: sink, filter: newEventFilter(eventTypes)})
}

// Len reports how many sinks are registered.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.routes)
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run dispatches on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	interval := d.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	d.logger().Info("relay started", "sinks", d.Len(), "interval", interval.String())
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchOnce forwards one batch of pending events to every sink.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	d.mu.Lock()
	routes := append([]route(nil), d.routes...)
	d.mu.Unlock()
	for _, r := range routes {
		if ctx.Err() != nil {
			return
		}
		d.dispatch(ctx, r)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, r route) {
	name := r.sink.Name()
	log := d.logger().With("sink", name)
	cursor, err := d.cursorFor(ctx, name)
	if err != nil {
		log.Error("relay: init cursor failed", "error", err)
		return
	}
	batch := d.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	evts, err := d.Store.EventsAfter(ctx, batch, cursor)
	if err != nil {
		log.Error("relay: fetch events failed", "error", err)
		return
	}
	if len(evts) == 0 {
		return
	}
	last := cursor
	for _, evt := range evts {
		if r.filter.match(evt.Type) {
			err := r.sink.Deliver(ctx, evt)
			d.Metrics.Relayed(name, err)
			if err != nil {
				log.Warn("relay: delivery failed", "event_id", evt.ID, "event", evt.Type, "error", err)
				break
			}
		}
		last = evt.ID
	}
	if last != cursor {
		d.setCursor(ctx, name, last)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, sink string) (int64, error) {
	d.mu.Lock()
	cur, ok := d.cursors[sink]
	d.mu.Unlock()
	if ok {
		return cur, nil
	}
	cur, ok, err := d.Store.RelayCursor(ctx, sink)
	if err != nil {
		return 0, err
	}
	if !ok {
		if cur, err = d.Store.LatestEventID(ctx); err != nil {
			return 0, err
		}
		if err := d.Store.SetRelayCursor(ctx, sink, cur, domain.Timestamp(d.now())); err != nil {
			return 0, err
		}
	}
	d.mu.Lock()
	d.cursors[sink] = cur
	d.mu.Unlock()
	return cur, nil
}

func (d *Dispatcher) setCursor(ctx context.Context, sink string, id int64) {
	d.mu.Lock()
	d.cursors[sink] = id
	d.mu.Unlock()
	if err := d.Store.SetRelayCursor(ctx, sink, id, domain.Timestamp(d.now())); err != nil {
		d.logger().Error("relay: persist cursor failed", "sink", sink, "event_id", id, "error", err)
	}
}

// Envelope is the JSON body sinks receive for one event.
type Envelope struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

// NewEnvelope wraps evt; a payload that is not valid JSON is passed as text.
func NewEnvelope(evt domain.Event) Envelope {
	env := Envelope{
		ID:         evt.ID,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    json.RawMessage(`{}`),
	}
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			env.Payload = json.RawMessage(evt.Payload)
		} else {
			env.PayloadRaw = evt.Payload
		}
	}
	return env
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
