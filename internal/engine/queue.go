package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// playFunc renders one utterance and blocks until it finishes or ctx is
// cancelled.
type playFunc func(ctx context.Context, text string) error

// speechQueue plays utterances one at a time in FIFO order on a single worker
// goroutine. The worker is the only caller of the start, end and error hooks,
// so they fire in order.
type speechQueue struct {
	play     playFunc
	hold     func()
	release  func()
	onStart  func()
	onEnd    func()
	onErr    func(error)
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	items   []string
	playing bool
	cancel  context.CancelFunc
	paused  bool
	closed  bool
}

type queueHooks struct {
	// hold and release pause and resume the utterance being played.
	hold    func()
	release func()

	onStart func()
	onEnd   func()
	onErr   func(error)
}

func newSpeechQueue(play playFunc, h queueHooks) *speechQueue {
	noop := func() {}
	q := &speechQueue{
		play:    play,
		hold:    h.hold,
		release: h.release,
		onStart: h.onStart,
		onEnd:   h.onEnd,
		onErr:   h.onErr,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, f := range []*func(){&q.hold, &q.release, &q.onStart, &q.onEnd} {
		if *f == nil {
			*f = noop
		}
	}
	if q.onErr == nil {
		q.onErr = func(error) {}
	}
	go q.run()
	return q
}

func (q *speechQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// push appends text. With interrupt set the queue is flushed first.
func (q *speechQueue) push(text string, interrupt bool) {
	if strings.TrimSpace(text) == "" {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if interrupt {
		q.flushLocked()
	}
	q.items = append(q.items, text)
	q.mu.Unlock()
	q.signal()
}

// flush drops queued items and cancels the current one.
func (q *speechQueue) flush() {
	q.mu.Lock()
	q.flushLocked()
	q.mu.Unlock()
}

func (q *speechQueue) flushLocked() {
	q.items = nil
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	if q.paused {
		q.paused = false
		q.release()
	}
}

func (q *speechQueue) pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.paused || q.closed {
		return
	}
	q.paused = true
	q.hold()
}

func (q *speechQueue) resume() {
	q.mu.Lock()
	if !q.paused {
		q.mu.Unlock()
		return
	}
	q.paused = false
	q.release()
	q.mu.Unlock()
	q.signal()
}

// busy reports whether an utterance is playing or waiting.
func (q *speechQueue) busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing || len(q.items) > 0
}

func (q *speechQueue) isPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// close flushes the queue and stops the worker. It waits for the worker to
// exit.
func (q *speechQueue) close() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.flushLocked()
		q.closed = true
		q.mu.Unlock()
		q.signal()
	})
	<-q.done
}

// next blocks until an item can be played. ok is false once the queue is
// closed.
func (q *speechQueue) next() (text string, ctx context.Context, ok bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return "", nil, false
		}
		if len(q.items) > 0 && !q.paused {
			text = q.items[0]
			q.items = q.items[1:]
			var cancel context.CancelFunc
			ctx, cancel = context.WithCancel(context.Background())
			q.cancel = cancel
			q.playing = true
			q.mu.Unlock()
			return text, ctx, true
		}
		q.mu.Unlock()
		<-q.wake
	}
}

func (q *speechQueue) finish(ctx context.Context) (idle bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil && ctx.Err() == nil {
		q.cancel()
	}
	q.cancel = nil
	q.playing = false
	return len(q.items) == 0 || q.closed
}

func (q *speechQueue) run() {
	defer close(q.done)
	active := false
	for {
		text, ctx, ok := q.next()
		if !ok {
			if active {
				q.onEnd()
			}
			return
		}
		if !active {
			active = true
			q.onStart()
		}
		err := q.play(ctx, text)
		cancelled := ctx.Err() != nil
		idle := q.finish(ctx)
		if err != nil && !cancelled && !errors.Is(err, context.Canceled) {
			q.onErr(err)
		}
		if idle {
			active = false
			q.onEnd()
		}
	}
}
