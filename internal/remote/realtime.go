package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

// Remote table names as they appear in change events.
const (
	TableArticles    = "articles"
	TableLists       = "lists"
	TableMemberships = "article_lists"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Change is one row change from the realtime feed. Record is the new
// row for inserts and updates; OldRecord is the previous row for
// updates and deletes. Either may be empty or "{}".
type Change struct {
	Type            EventType
	Table           string
	Record          json.RawMessage
	OldRecord       json.RawMessage
	CommitTimestamp string
}

// Status is the lifecycle of a realtime subscription.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

const (
	// heartbeatInterval is how often a phoenix heartbeat is sent. A
	// heartbeat still unanswered at the next tick drops the connection.
	heartbeatInterval = 25 * time.Second

	reconnectMin = 1 * time.Second
	reconnectMax = 2 * time.Minute

	// jitterDivisor controls the range of random jitter added to
	// reconnect backoff: jitter is uniform in [0, backoff/jitterDivisor).
	jitterDivisor = 2

	// reconnectBackoffMultiplier is the exponential growth factor
	// applied to the reconnect backoff after each consecutive failure.
	reconnectBackoffMultiplier = 2

	// inboundChanSize is the buffer size for the channel carrying
	// frames from the reader goroutine to the event loop.
	inboundChanSize = 64

	// realtimeReadLimit caps a single frame. Change frames carry one row.
	realtimeReadLimit = 4 * 1024 * 1024

	phoenixVersion = "1.0.0"
	phoenixTopic   = "phoenix"
)

var errHeartbeatTimeout = errors.New("realtime heartbeat timeout")

// wsConn abstracts the WebSocket connection so Realtime can be tested
// without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

type dialFunc func(ctx context.Context) (wsConn, error)

// inboundMsg wraps a frame read by the reader goroutine.
type inboundMsg struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

type channelSpec struct {
	topic  string
	table  string
	filter string
}

type phxMessage struct {
	Topic   string `json:"topic"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	Ref     string `json:"ref"`
	JoinRef string `json:"join_ref,omitempty"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

type joinConfig struct {
	Broadcast struct {
		Self bool `json:"self"`
	} `json:"broadcast"`
	Presence struct {
		Key string `json:"key"`
	} `json:"presence"`
	PostgresChanges []postgresChangesFilter `json:"postgres_changes"`
}

type postgresChangesFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type changeData struct {
	Type            EventType       `json:"type"`
	Table           string          `json:"table"`
	Record          json.RawMessage `json:"record"`
	OldRecord       json.RawMessage `json:"old_record"`
	CommitTimestamp string          `json:"commit_timestamp"`
}

// RealtimeConfig configures a subscription.
type RealtimeConfig struct {
	UserID string

	// Token is the user access token sent with each join. Defaults to
	// the client's current token.
	Token string

	// Handler is called from the event loop for every change, in
	// arrival order. It must not call Close.
	Handler func(Change)

	// OnStatus is called on every status transition.
	OnStatus func(Status)

	Logger *slog.Logger
}

// Realtime is a live subscription to the articles, lists and
// article_lists change feeds of one user.
//
// A reader goroutine feeds inboundCh with raw frames. A single event
// loop goroutine handles join replies, change frames and heartbeat
// ticks, and owns every write to the connection.
type Realtime struct {
	logger   *slog.Logger
	dial     dialFunc
	token    string
	channels []channelSpec
	handler  func(Change)
	onStatus func(Status)

	heartbeatEvery time.Duration
	backoffMin     time.Duration
	backoffMax     time.Duration

	// Owned by the event loop.
	conn         wsConn
	inboundCh    chan inboundMsg
	ref          uint64
	joins        map[string]string
	joined       map[string]bool
	heartbeatRef string

	statusMu sync.Mutex
	status   Status

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func realtimeChannels(userID string) []channelSpec {
	owned := "user_id=eq." + userID

	return []channelSpec{
		{topic: "realtime:articles-changes", table: TableArticles, filter: owned},
		{topic: "realtime:lists-changes", table: TableLists, filter: owned},
		// Membership rows carry no owner; the consumer filters them.
		{topic: "realtime:article-lists-changes", table: TableMemberships},
	}
}

func newRealtime(cfg RealtimeConfig, dial dialFunc) *Realtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	handler := cfg.Handler
	if handler == nil {
		handler = func(Change) {}
	}

	return &Realtime{
		logger:         logger,
		dial:           dial,
		token:          cfg.Token,
		channels:       realtimeChannels(cfg.UserID),
		handler:        handler,
		onStatus:       cfg.OnStatus,
		heartbeatEvery: heartbeatInterval,
		backoffMin:     reconnectMin,
		backoffMax:     reconnectMax,
		status:         StatusDisconnected,
		done:           make(chan struct{}),
	}
}

// Subscribe opens the realtime feed for cfg.UserID. It returns at once;
// connection progress is reported through cfg.OnStatus. Dropped
// connections are retried with jittered exponential backoff. A rejected
// join is final and leaves the subscription in StatusError.
func (c *Client) Subscribe(ctx context.Context, cfg RealtimeConfig) (*Realtime, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("subscribing: %w", apperrors.ErrNoSession)
	}

	if cfg.Token == "" {
		cfg.Token = c.Token()
	}

	endpoint, err := c.realtimeURL()
	if err != nil {
		return nil, err
	}

	apiKey := c.apiKey
	dial := func(ctx context.Context) (wsConn, error) {
		conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
			HTTPHeader: http.Header{"apikey": []string{apiKey}},
		})
		if err != nil {
			return nil, err
		}

		return conn, nil
	}

	rt := newRealtime(cfg, dial)
	rt.start(ctx)

	return rt, nil
}

func (c *Client) realtimeURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing backend url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {c.apiKey}, "vsn": {phoenixVersion}}.Encode()

	return u.String(), nil
}

func (r *Realtime) start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.run(runCtx)
}

// Close unsubscribes and waits for the event loop to exit. No handler
// runs after Close returns.
func (r *Realtime) Close() {
	r.stopOnce.Do(func() {
		r.cancel()
		<-r.done
		r.setStatus(StatusDisconnected)
	})
}

// Done is closed when the event loop has exited, either after Close or
// after a rejected join.
func (r *Realtime) Done() <-chan struct{} {
	return r.done
}

// Status returns the current lifecycle status.
func (r *Realtime) Status() Status {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()

	return r.status
}

func (r *Realtime) setStatus(s Status) {
	r.statusMu.Lock()
	changed := r.status != s
	r.status = s
	r.statusMu.Unlock()

	if changed && r.onStatus != nil {
		r.onStatus(s)
	}
}

func (r *Realtime) run(ctx context.Context) {
	defer close(r.done)

	backoff := r.backoffMin

	for {
		r.setStatus(StatusConnecting)

		subscribed, err := r.session(ctx)
		if ctx.Err() != nil {
			return
		}

		r.setStatus(StatusError)

		if errors.Is(err, apperrors.ErrSubscribeRejected) {
			r.logger.Error("realtime subscription rejected", slog.String("error", err.Error()))
			return
		}

		if subscribed {
			backoff = r.backoffMin
		}

		r.logger.Warn("realtime connection lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)

		var jitter time.Duration
		if n := int64(backoff) / jitterDivisor; n > 0 {
			jitter = time.Duration(rand.Int64N(n)) //nolint:gosec // G404: math/rand is fine for reconnect jitter, no security impact
		}

		timer := time.NewTimer(backoff + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff = min(backoff*reconnectBackoffMultiplier, r.backoffMax)
	}
}

// session runs one connection from dial to failure. It reports whether
// every channel was joined before the connection ended.
func (r *Realtime) session(ctx context.Context) (bool, error) {
	conn, err := r.dial(ctx)
	if err != nil {
		return false, fmt.Errorf("dialing realtime: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	conn.SetReadLimit(realtimeReadLimit)

	r.conn = conn
	r.joins = make(map[string]string, len(r.channels))
	r.joined = make(map[string]bool, len(r.channels))
	r.heartbeatRef = ""

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	r.startReader(connCtx)

	for _, ch := range r.channels {
		if err := r.join(ctx, ch); err != nil {
			return false, err
		}
	}

	err = r.eventLoop(ctx)

	return r.allJoined(), err
}

// startReader launches a goroutine that reads from the connection and
// feeds inboundCh. The goroutine captures ch and conn by value so a
// reader from a previous connection cannot leak frames into the next.
func (r *Realtime) startReader(connCtx context.Context) {
	ch := make(chan inboundMsg, inboundChanSize)
	r.inboundCh = ch
	conn := r.conn

	go func() {
		for {
			typ, data, err := conn.Read(connCtx)
			select {
			case ch <- inboundMsg{typ: typ, data: data, err: err}:
			case <-connCtx.Done():
				return
			}

			if err != nil {
				return
			}
		}
	}()
}

func (r *Realtime) join(ctx context.Context, ch channelSpec) error {
	ref := r.nextRef()
	r.joins[ref] = ch.topic

	payload := joinPayload{AccessToken: r.token}
	payload.Config.PostgresChanges = []postgresChangesFilter{{
		Event:  "*",
		Schema: "public",
		Table:  ch.table,
		Filter: ch.filter,
	}}

	msg := phxMessage{Topic: ch.topic, Event: "phx_join", Payload: payload, Ref: ref, JoinRef: ref}
	if err := r.writeJSON(ctx, msg); err != nil {
		return fmt.Errorf("joining %s: %w", ch.topic, err)
	}

	r.logger.Debug("realtime join sent", slog.String("topic", ch.topic))

	return nil
}

func (r *Realtime) eventLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case msg := <-r.inboundCh:
			if msg.err != nil {
				return fmt.Errorf("reading realtime message: %w", msg.err)
			}

			if msg.typ != websocket.MessageText {
				r.logger.Debug("unexpected binary frame", slog.Int("bytes", len(msg.data)))
				continue
			}

			if err := r.handleFrame(msg.data); err != nil {
				return err
			}

		case <-ticker.C:
			if r.heartbeatRef != "" {
				return errHeartbeatTimeout
			}

			r.heartbeatRef = r.nextRef()

			hb := phxMessage{Topic: phoenixTopic, Event: "heartbeat", Payload: struct{}{}, Ref: r.heartbeatRef}
			if err := r.writeJSON(ctx, hb); err != nil {
				return fmt.Errorf("sending heartbeat: %w", err)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Realtime) handleFrame(data []byte) error {
	if !gjson.ValidBytes(data) {
		r.logger.Debug("unparseable realtime frame", slog.Int("bytes", len(data)))
		return nil
	}

	frame := gjson.ParseBytes(data)
	topic := frame.Get("topic").String()
	ref := frame.Get("ref").String()

	switch event := frame.Get("event").String(); event {
	case "phx_reply":
		if ref != "" && ref == r.heartbeatRef {
			r.heartbeatRef = ""
			return nil
		}

		joinTopic, ok := r.joins[ref]
		if !ok {
			return nil
		}

		delete(r.joins, ref)

		if status := frame.Get("payload.status").String(); status != "ok" {
			reason := frame.Get("payload.response.reason").String()
			return fmt.Errorf("joining %s: %s %s: %w", joinTopic, status, reason, apperrors.ErrSubscribeRejected)
		}

		r.joined[joinTopic] = true
		if r.allJoined() {
			r.logger.Info("realtime subscribed", slog.Int("channels", len(r.channels)))
			r.setStatus(StatusConnected)
		}

	case "postgres_changes":
		raw := frame.Get("payload.data").Raw
		if raw == "" {
			r.logger.Debug("change frame without data", slog.String("topic", topic))
			return nil
		}

		var cd changeData
		if err := json.Unmarshal([]byte(raw), &cd); err != nil {
			r.logger.Warn("failed to decode change", slog.String("topic", topic), slog.String("error", err.Error()))
			return nil
		}

		if cd.Table == "" {
			cd.Table = r.tableFor(topic)
		}

		r.handler(Change{
			Type:            cd.Type,
			Table:           cd.Table,
			Record:          cd.Record,
			OldRecord:       cd.OldRecord,
			CommitTimestamp: cd.CommitTimestamp,
		})

	case "system":
		if frame.Get("payload.status").String() == "error" {
			return fmt.Errorf("%s: %s: %w", topic, frame.Get("payload.message").String(), apperrors.ErrSubscribeRejected)
		}

	case "phx_error":
		return fmt.Errorf("channel %s errored", topic)

	case "phx_close":
		if r.joined[topic] {
			return fmt.Errorf("channel %s closed by server", topic)
		}

	default:
		r.logger.Debug("unhandled realtime event", slog.String("topic", topic), slog.String("event", event))
	}

	return nil
}

func (r *Realtime) allJoined() bool {
	return len(r.joined) == len(r.channels)
}

func (r *Realtime) tableFor(topic string) string {
	for _, ch := range r.channels {
		if ch.topic == topic {
			return ch.table
		}
	}

	return ""
}

func (r *Realtime) nextRef() string {
	r.ref++
	return strconv.FormatUint(r.ref, 10)
}

// writeJSON marshals v to JSON and writes it as a text frame. Only
// called from the event loop goroutine.
func (r *Realtime) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling message: %w", err)
	}

	return r.conn.Write(ctx, websocket.MessageText, data)
}
