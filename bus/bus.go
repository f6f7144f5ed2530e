// bus.go
package bus

import (
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic is a sequence of tokens. In subscriptions "+" matches exactly one
// token and a trailing "#" matches zero or more.
type Topic []string

const (
	wildOne  = "+"
	wildRest = "#"
)

// T builds a topic from tokens.
func T(tokens ...string) Topic { return Topic(tokens) }

func (t Topic) String() string { return strings.Join(t, "/") }

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// NewMessage is a convenience constructor.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// deliver never blocks: on a full queue the oldest message is dropped.
func (s *Subscription) deliver(msg *Message) {
	for {
		select {
		case s.ch <- msg:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok string, create bool) *node {
	if c, ok := n.children[tok]; ok {
		return c
	}
	if !create {
		return nil
	}
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu       sync.Mutex
	subs     *node // subscription patterns
	retained *node // concrete topics holding retained messages
	qLen     int
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{
		subs:     &node{},
		retained: &node{},
		qLen:     queueLen,
	}
}

// addSubscription inserts a subscription and replays matching retained messages.
func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	collectRetained(b.retained, sub.topic, func(m *Message) { sub.deliver(m) })
}

// collectRetained walks concrete retained topics matching pattern.
func collectRetained(n *node, pattern Topic, fn func(*Message)) {
	if len(pattern) == 0 {
		if n.retained != nil {
			fn(n.retained)
		}
		return
	}
	switch tok := pattern[0]; tok {
	case wildRest:
		walkAll(n, fn)
	case wildOne:
		for _, c := range n.children {
			collectRetained(c, pattern[1:], fn)
		}
	default:
		if c := n.child(tok, false); c != nil {
			collectRetained(c, pattern[1:], fn)
		}
	}
}

func walkAll(n *node, fn func(*Message)) {
	if n.retained != nil {
		fn(n.retained)
	}
	for _, c := range n.children {
		walkAll(c, fn)
	}
}

// matchSubs walks subscription patterns matching a concrete topic.
func matchSubs(n *node, topic Topic, fn func(*Subscription)) {
	if c := n.child(wildRest, false); c != nil {
		for _, s := range c.subs {
			fn(s)
		}
	}
	if len(topic) == 0 {
		for _, s := range n.subs {
			fn(s)
		}
		return
	}
	if c := n.child(topic[0], false); c != nil {
		matchSubs(c, topic[1:], fn)
	}
	if c := n.child(wildOne, false); c != nil {
		matchSubs(c, topic[1:], fn)
	}
}

// Publish delivers a message to all subscribers whose pattern matches its topic.
// A retained message with a nil payload clears the retained slot.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	matchSubs(b.subs, msg.Topic, func(s *Subscription) { s.deliver(msg) })

	if !msg.Retained {
		return
	}
	n := b.retained
	for _, tok := range msg.Topic {
		n = n.child(tok, true)
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// unsubscribe removes a subscription from the trie.
func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	stack := []*node{n}
	for _, tok := range sub.topic {
		n = n.child(tok, false)
		if n == nil {
			return
		}
		stack = append(stack, n)
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent, child := stack[i], stack[i+1]
		if len(child.subs) == 0 && len(child.children) == 0 {
			delete(parent.children, sub.topic[i])
		} else {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

// NewMessage mirrors Bus.NewMessage for callers holding only a connection.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: append(Topic(nil), topic...),
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.bus.addSubscription(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription owned by this connection.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	found := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.bus.unsubscribe(sub)
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}
