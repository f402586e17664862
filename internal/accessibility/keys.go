package accessibility

import "sync"

// Key names a physical key relevant to the voice shortcuts.
type Key string

const (
	KeySpace   Key = "Space"
	KeyControl Key = "Control"
	KeyMeta    Key = "Meta"
)

// KeyEvent is one key transition.
type KeyEvent struct {
	Key  Key
	Down bool

	// Modifier state at the time of the event.
	Ctrl bool
	Meta bool

	// Repeat is set for auto-repeated key-down events.
	Repeat bool
}

// KeySource delivers key events to subscribers. The returned function
// removes the subscription.
type KeySource interface {
	Subscribe(fn func(KeyEvent)) (unsubscribe func())
}

// Dispatcher is a KeySource fed by the host. Subscribers are called
// synchronously from Dispatch in subscription order.
type Dispatcher struct {
	mu   sync.Mutex
	next int
	subs map[int]func(KeyEvent)
	ids  []int
}

var _ KeySource = (*Dispatcher)(nil)

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[int]func(KeyEvent))}
}

// Subscribe implements KeySource.
func (d *Dispatcher) Subscribe(fn func(KeyEvent)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.next
	d.next++
	d.subs[id] = fn
	d.ids = append(d.ids, id)
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs, id)
			for i, v := range d.ids {
				if v == id {
					d.ids = append(d.ids[:i], d.ids[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispatch delivers ev to every subscriber.
func (d *Dispatcher) Dispatch(ev KeyEvent) {
	d.mu.Lock()
	fns := make([]func(KeyEvent), 0, len(d.ids))
	for _, id := range d.ids {
		fns = append(fns, d.subs[id])
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Subscribers returns the number of live subscriptions.
func (d *Dispatcher) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ids)
}
