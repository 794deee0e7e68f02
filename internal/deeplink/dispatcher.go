package deeplink

import (
	"context"
	"sync"

	"prayerfirst/internal/eventbus"
	logx "prayerfirst/pkg/logx"
)

// Navigator acts on a route. It is only ever called from Dispatcher.Run.
type Navigator interface {
	Navigate(ctx context.Context, r Route) error
}

type NavigatorFunc func(ctx context.Context, r Route) error

func (f NavigatorFunc) Navigate(ctx context.Context, r Route) error { return f(ctx, r) }

// Dispatcher is the single consumer of deep-link events.
//
// Links that arrive before MarkReady are parked in one pending slot (a newer
// link replaces an older one) and delivered right after MarkReady.
type Dispatcher struct {
	bus   eventbus.Bus
	nav   Navigator
	log   logx.Logger
	ch    <-chan eventbus.Event
	unsub func()

	readyCh chan struct{}

	mu      sync.Mutex
	ready   bool
	pending *Route
}

// NewDispatcher subscribes right away so a cold-start link published before
// Run starts is not lost.
func NewDispatcher(bus eventbus.Bus, nav Navigator, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	ch, unsub := bus.Subscribe(32)
	return &Dispatcher{
		bus:     bus,
		nav:     nav,
		log:     log,
		ch:      ch,
		unsub:   unsub,
		readyCh: make(chan struct{}, 1),
	}
}

// Launch publishes a deep link, e.g. the URL the process was started with.
func (d *Dispatcher) Launch(url string) {
	if url == "" {
		return
	}
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeDeepLinkOpen, Data: url})
}

// MarkReady tells the dispatcher the main screen is up.
func (d *Dispatcher) MarkReady() {
	select {
	case d.readyCh <- struct{}{}:
	default:
	}
}

// Ready reports whether MarkReady has been processed.
func (d *Dispatcher) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// Pending returns the parked route, if any.
func (d *Dispatcher) Pending() (Route, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return "", false
	}
	return *d.pending, true
}

// Run consumes events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.readyCh:
			d.mu.Lock()
			d.ready = true
			p := d.pending
			d.pending = nil
			d.mu.Unlock()
			if p != nil {
				d.log.Debug("delivering deferred deep link", logx.String("route", string(*p)))
				d.navigate(ctx, *p)
			}
		case e, ok := <-d.ch:
			if !ok {
				return nil
			}
			if e.Type != eventbus.TypeDeepLinkOpen {
				continue
			}
			d.handle(ctx, e)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, e eventbus.Event) {
	raw, _ := e.Data.(string)
	r, err := Parse(raw)
	if err != nil {
		d.log.Warn("ignoring deep link", logx.String("url", raw), logx.Err(err))
		return
	}
	d.mu.Lock()
	if !d.ready {
		d.pending = &r
		d.mu.Unlock()
		d.log.Debug("deep link deferred until ready", logx.String("route", string(r)))
		return
	}
	d.mu.Unlock()
	d.navigate(ctx, r)
}

func (d *Dispatcher) navigate(ctx context.Context, r Route) {
	if err := d.nav.Navigate(ctx, r); err != nil {
		d.log.Warn("deep link navigation failed", logx.String("route", string(r)), logx.Err(err))
	}
}
