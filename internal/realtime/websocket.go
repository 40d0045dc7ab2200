package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mixer/clock"

	"github.com/nhle/guest-services/internal/logging"
	"github.com/nhle/guest-services/internal/wallclock"
)

// Frame events exchanged over the websocket transport.
const (
	frameJoin      = "phx_join"
	frameLeave     = "phx_leave"
	frameReply     = "phx_reply"
	frameHeartbeat = "heartbeat"
	frameChange    = "change"

	heartbeatTopic = "phoenix"
	topicPrefix    = "realtime:"
)

const (
	joinTimeout       = 10 * time.Second
	writeTimeout      = 5 * time.Second
	heartbeatInterval = 25 * time.Second
)

// frame is one message on the wire.
type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     string          `json:"ref,omitempty"`
}

type joinPayload struct {
	Filter string `json:"filter,omitempty"`
}

type replyPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func newFrame(topic, event, ref string, payload any) (frame, error) {
	f := frame{Topic: topic, Event: event, Ref: ref}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return frame{}, err
		}
		f.Payload = raw
	}
	return f, nil
}

// WebsocketSubscriber subscribes over a websocket server speaking
// join/leave frames. Each subscription uses its own connection.
type WebsocketSubscriber struct {
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	clock     clock.Clock
	heartbeat time.Duration
	logger    logging.Logger
}

var _ Subscriber = (*WebsocketSubscriber)(nil)

// WebsocketOption configures a WebsocketSubscriber.
type WebsocketOption func(*WebsocketSubscriber)

// WithAPIKey sends key as the apikey header on every connection.
func WithAPIKey(key string) WebsocketOption {
	return func(w *WebsocketSubscriber) {
		if key != "" {
			w.header.Set("apikey", key)
		}
	}
}

// WithHeartbeat sets the heartbeat period and the clock driving it.
func WithHeartbeat(c clock.Clock, d time.Duration) WebsocketOption {
	return func(w *WebsocketSubscriber) {
		w.clock = c
		w.heartbeat = d
	}
}

// WithWebsocketLogger sets the logger.
func WithWebsocketLogger(l logging.Logger) WebsocketOption {
	return func(w *WebsocketSubscriber) { w.logger = logging.OrNop(l) }
}

// NewWebsocketSubscriber creates a subscriber for the server at url
// (ws:// or wss://).
func NewWebsocketSubscriber(url string, opts ...WebsocketOption) *WebsocketSubscriber {
	w := &WebsocketSubscriber{
		url:       url,
		header:    http.Header{},
		dialer:    &websocket.Dialer{HandshakeTimeout: joinTimeout},
		clock:     wallclock.New(),
		heartbeat: heartbeatInterval,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type wsSub struct {
	conn  *websocket.Conn
	topic string

	writeMu sync.Mutex
	done    chan error
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func (s *wsSub) Done() <-chan error { return s.done }

func (s *wsSub) write(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(f)
}

func (s *wsSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		if leave, ferr := newFrame(s.topic, frameLeave, uuid.NewString(), nil); ferr == nil {
			// The server may already be gone.
			_ = s.write(leave)
		}
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

// Subscribe dials the server, joins topic and waits for the join reply.
func (w *WebsocketSubscriber) Subscribe(ctx context.Context, topic string, filter Filter, onEvent func(Event)) (Subscription, error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, fmt.Errorf("handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", w.url, err)
	}

	s := &wsSub{
		conn:  conn,
		topic: topicPrefix + topic,
		done:  make(chan error, 1),
		stop:  make(chan struct{}),
	}

	ref := uuid.NewString()
	join, err := newFrame(s.topic, frameJoin, ref, joinPayload{Filter: filter.String()})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := s.write(join); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("joining %s: %w", topic, err)
	}
	if err := awaitReply(conn, ref); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("joining %s: %w", topic, err)
	}

	s.wg.Add(2)
	go w.readLoop(s, filter, onEvent)
	go w.heartbeatLoop(s)
	return s, nil
}

func awaitReply(conn *websocket.Conn, ref string) error {
	_ = conn.SetReadDeadline(time.Now().Add(joinTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		if f.Event != frameReply || f.Ref != ref {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(f.Payload, &reply); err != nil {
			return fmt.Errorf("decoding reply: %w", err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("join refused: %s", reply.Reason)
		}
		return nil
	}
}

func (w *WebsocketSubscriber) readLoop(s *wsSub, filter Filter, onEvent func(Event)) {
	defer s.wg.Done()
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			select {
			case <-s.stop:
			default:
				s.done <- fmt.Errorf("%w: %v", ErrSubscriptionLost, err)
			}
			return
		}
		if f.Event != frameChange || f.Topic != s.topic {
			continue
		}
		var ev Event
		if err := json.Unmarshal(f.Payload, &ev); err != nil {
			w.logger.Warn("dropping malformed event", "topic", s.topic, "err", err)
			continue
		}
		if filter.Match(ev.Payload) {
			onEvent(ev)
		}
	}
}

func (w *WebsocketSubscriber) heartbeatLoop(s *wsSub) {
	defer s.wg.Done()
	ticker := w.clock.NewTicker(w.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.Chan():
			hb, err := newFrame(heartbeatTopic, frameHeartbeat, uuid.NewString(), struct{}{})
			if err != nil {
				continue
			}
			if err := s.write(hb); err != nil {
				w.logger.Debug("heartbeat failed", "topic", s.topic, "err", err)
			}
		}
	}
}

// WebsocketHandler relays a Subscriber (usually a Hub) to websocket
// clients speaking the same frames as WebsocketSubscriber.
type WebsocketHandler struct {
	sub      Subscriber
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewWebsocketHandler creates a relay over sub.
func NewWebsocketHandler(sub Subscriber, logger logging.Logger) *WebsocketHandler {
	return &WebsocketHandler{
		sub: sub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logging.OrNop(logger),
	}
}

// relayConn is the server side of one client connection.
type relayConn struct {
	conn   *websocket.Conn
	logger logging.Logger

	mu     sync.Mutex
	closed bool
	out    chan frame
	subs   map[string]Subscription
}

// send queues f for the writer. Events are dropped when the client cannot
// keep up; it catches up by polling.
func (c *relayConn) send(f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- f:
	default:
		c.logger.Warn("client too slow, dropping frame", "topic", f.Topic)
	}
}

func (c *relayConn) reply(topic, ref, status, reason string) {
	f, err := newFrame(topic, frameReply, ref, replyPayload{Status: status, Reason: reason})
	if err == nil {
		c.send(f)
	}
}

func (c *relayConn) shutdown() {
	c.mu.Lock()
	subs := c.subs
	c.subs = map[string]Subscription{}
	c.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	c.mu.Unlock()
}

// ServeHTTP upgrades the request and serves join, leave and heartbeat
// frames until the client disconnects.
func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	c := &relayConn{
		conn:   conn,
		logger: h.logger,
		out:    make(chan frame, 64),
		subs:   make(map[string]Subscription),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for f := range c.out {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(f); err != nil {
				h.logger.Debug("websocket write failed", "err", err)
				_ = conn.Close()
			}
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		switch f.Event {
		case frameHeartbeat:
			c.reply(heartbeatTopic, f.Ref, "ok", "")
		case frameJoin:
			h.join(ctx, c, f)
		case frameLeave:
			c.mu.Lock()
			s := c.subs[f.Topic]
			delete(c.subs, f.Topic)
			c.mu.Unlock()
			if s != nil {
				_ = s.Unsubscribe()
			}
			c.reply(f.Topic, f.Ref, "ok", "")
		}
	}

	c.shutdown()
	wg.Wait()
}

func (h *WebsocketHandler) join(ctx context.Context, c *relayConn, f frame) {
	name, ok := strings.CutPrefix(f.Topic, topicPrefix)
	if !ok || name == "" {
		c.reply(f.Topic, f.Ref, "error", "unknown topic")
		return
	}
	var p joinPayload
	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			c.reply(f.Topic, f.Ref, "error", "malformed payload")
			return
		}
	}
	filter, err := ParseFilter(p.Filter)
	if err != nil {
		c.reply(f.Topic, f.Ref, "error", err.Error())
		return
	}

	wireTopic := f.Topic
	sub, err := h.sub.Subscribe(ctx, name, filter, func(ev Event) {
		change, err := newFrame(wireTopic, frameChange, "", ev)
		if err == nil {
			c.send(change)
		}
	})
	if err != nil {
		h.logger.Warn("relay subscribe failed", "topic", wireTopic, "err", err)
		c.reply(wireTopic, f.Ref, "error", err.Error())
		return
	}

	c.mu.Lock()
	if old := c.subs[wireTopic]; old != nil {
		_ = old.Unsubscribe()
	}
	c.subs[wireTopic] = sub
	c.mu.Unlock()
	c.reply(wireTopic, f.Ref, "ok", "")

	// A dropped upstream subscription drops the client, which then
	// resubscribes through its own backoff.
	go func() {
		select {
		case <-sub.Done():
			_ = c.conn.Close()
		case <-ctx.Done():
		}
	}()
}
