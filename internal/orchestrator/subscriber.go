package orchestrator

import "sync"

// subscriber forwards transitions to one reader through an unbounded queue,
// so a slow reader never makes the session drop or block on a transition.
type subscriber struct {
	mu    sync.Mutex
	queue []Transition
	ended bool

	wake     chan struct{}
	out      chan Transition
	stop     chan struct{}
	stopOnce sync.Once
}

func newSubscriber() *subscriber {
	sub := &subscriber{
		wake: make(chan struct{}, 1),
		out:  make(chan Transition),
		stop: make(chan struct{}),
	}
	go sub.run()
	return sub
}

func (sub *subscriber) push(t Transition) {
	sub.mu.Lock()
	if sub.ended {
		sub.mu.Unlock()
		return
	}
	sub.queue = append(sub.queue, t)
	sub.mu.Unlock()
	sub.signal()
}

// end lets the reader drain what is queued, then closes its channel
func (sub *subscriber) end() {
	sub.mu.Lock()
	sub.ended = true
	sub.mu.Unlock()
	sub.signal()
}

// cancel closes the reader's channel without draining
func (sub *subscriber) cancel() {
	sub.stopOnce.Do(func() { close(sub.stop) })
}

func (sub *subscriber) signal() {
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) run() {
	defer close(sub.out)
	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			ended := sub.ended
			sub.mu.Unlock()
			if ended {
				return
			}
			select {
			case <-sub.wake:
			case <-sub.stop:
				return
			}
			continue
		}
		t := sub.queue[0]
		sub.queue[0] = Transition{}
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.out <- t:
		case <-sub.stop:
			return
		}
	}
}
