package events

// Channel is an unbounded multi-producer, single-consumer queue: senders
// must never block on the hot path, because back-pressuring a user would
// distort the load profile it's supposed to be generating.
//
// No suitable third-party MPSC/unbounded-channel library covers this (see
// DESIGN.md); an internal relay goroutine holds the unbounded backlog in a
// plain slice and re-exposes it as an ordinary receive-only channel, so Send
// only ever synchronizes with that relay goroutine - never with however
// slowly the aggregator is consuming.
type Channel struct {
	in  chan Message
	out chan Message
}

// NewChannel starts the relay goroutine and returns the ready channel.
func NewChannel() *Channel {
	c := &Channel{
		in:  make(chan Message),
		out: make(chan Message),
	}
	go c.relay()
	return c
}

func (c *Channel) relay() {
	defer close(c.out)
	var queue []Message
	for {
		if len(queue) == 0 {
			m, ok := <-c.in
			if !ok {
				return
			}
			queue = append(queue, m)
			continue
		}
		select {
		case m, ok := <-c.in:
			if !ok {
				for _, q := range queue {
					c.out <- q
				}
				return
			}
			queue = append(queue, m)
		case c.out <- queue[0]:
			queue = queue[1:]
		}
	}
}

// Send enqueues a message. It is a no-op, not a panic, once Close has been
// called: a send against a closed channel is dropped silently, since that
// means the test has already ended.
func (c *Channel) Send(m Message) {
	defer func() { _ = recover() }()
	c.in <- m
}

// Out returns the receive-only side consumed by the aggregator. It closes,
// after yielding every message still queued, once Close has been called.
func (c *Channel) Out() <-chan Message {
	return c.out
}

// Close signals that no more messages will be sent. Safe to call once.
func (c *Channel) Close() {
	close(c.in)
}
