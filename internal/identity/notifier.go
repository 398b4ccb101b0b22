package identity

import "sync"

// notifier fans identity changes out to listeners. Each listener has its
// own goroutine and queue, so callbacks never block the provider and see
// changes in order.
type notifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]*listener
}

type listener struct {
	fn    func(*User)
	mu    sync.Mutex
	queue []*User
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newNotifier() *notifier {
	return &notifier{listeners: make(map[int]*listener)}
}

// subscribe registers fn and queues current() as its first delivery. Both
// happen under the lock taken by change, so no change can fall between the
// snapshot and the registration.
func (n *notifier) subscribe(fn func(*User), current func() *User) func() {
	l := &listener{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	n.mu.Lock()
	l.push(current())
	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	n.mu.Unlock()
	go l.run()

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
		l.once.Do(func() { close(l.done) })
	}
}

// change applies a provider state change and, when apply reports one,
// delivers the new user to every listener in the same critical section.
func (n *notifier) change(apply func() (*User, bool)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	u, changed := apply()
	if !changed {
		return
	}
	for _, l := range n.listeners {
		l.push(u)
	}
}

func (l *listener) push(u *User) {
	var snapshot *User
	if u != nil {
		c := *u
		snapshot = &c
	}
	l.mu.Lock()
	l.queue = append(l.queue, snapshot)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *listener) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			u := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()

			select {
			case <-l.done:
				return
			default:
			}
			l.fn(u)
		}
	}
}
