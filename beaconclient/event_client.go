package beaconclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/r3labs/sse/v2"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// scannerHeadroom is added to MaxPayloadBytes for the field names of a record.
const scannerHeadroom = 64 << 10

// EventClient keeps one event stream open to a beacon node and fans the
// decoded events out to listeners. Transport failures are retried forever
// after a fixed delay until Stop or Close is called.
//
// Stream signals (open, frame, failure) arrive on a background goroutine per
// connection session. Every state change they cause goes through transition,
// which ignores signals from sessions that were already torn down.
type EventClient struct {
	log        *logrus.Entry
	opts       Options
	nodeURL    *url.URL
	addr       string
	httpClient *http.Client
	clock      clockwork.Clock
	decoder    *Decoder
	listeners  *listenerRegistry
	dispatcher *dispatcher
	stats      *stats
	state      atomic.Int32
	decodeLog  rate.Sometimes

	mu      sync.Mutex
	topics  map[Topic]struct{}
	running bool
	session uint64
	cancel  context.CancelFunc
	done    chan struct{}
	queue   *dispatchQueue
	stopRun context.CancelFunc
}

var _ BeaconNodeClient = (*EventClient)(nil)

// NewEventClient validates opts and returns a stopped client.
func NewEventClient(opts Options) (*EventClient, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	nodeURL, err := parseNodeURL(opts.NodeURL)
	if err != nil {
		return nil, err
	}

	addr := nodeURL.Redacted()
	log := opts.Log.WithFields(logrus.Fields{
		"module": "beaconclient",
		"uri":    addr,
	})

	c := &EventClient{
		log:        log,
		opts:       opts,
		nodeURL:    nodeURL,
		addr:       addr,
		httpClient: opts.httpClient(),
		clock:      opts.Clock,
		decoder:    NewDecoder(opts.MaxPayloadBytes),
		listeners:  newListenerRegistry(),
		stats:      &stats{},
		decodeLog:  rate.Sometimes{First: 10, Interval: 10 * time.Second},
		topics:     make(map[Topic]struct{}),
	}
	c.dispatcher = &dispatcher{log: log, listeners: c.listeners, stats: c.stats}

	for _, t := range opts.Topics {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown topic %d", ErrConfiguration, t)
		}
		c.topics[t] = struct{}{}
	}
	connectionStateGauge.WithLabelValues(addr).Set(float64(StateDisconnected))

	return c, nil
}

// Subscribe adds topics to the subscription set. If the set grows while the
// stream is connected or connecting, the stream is reopened right away with
// the new query. A request already in flight carries the old query.
func (c *EventClient) Subscribe(topics ...Topic) error {
	if len(topics) == 0 {
		return fmt.Errorf("%w: no topics given", ErrInvalidArgument)
	}
	for _, t := range topics {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown topic %d", ErrInvalidArgument, t)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	grew := false
	for _, t := range topics {
		if _, ok := c.topics[t]; !ok {
			c.topics[t] = struct{}{}
			grew = true
		}
	}

	state := c.State()
	if grew && c.running && (state == StateConnected || state == StateConnecting) {
		c.log.WithField("topics", c.topicsLocked()).Info("subscription changed, reconnecting")
		c.closeSessionLocked()
		c.setStateLocked(StateDisconnected)
		c.openSessionLocked()
	}
	return nil
}

// AddListener registers fn for topic. Listeners may be added in any state.
func (c *EventClient) AddListener(topic Topic, fn Listener) (ListenerID, error) {
	if !topic.Valid() {
		return 0, fmt.Errorf("%w: unknown topic %d", ErrInvalidArgument, topic)
	}
	if fn == nil {
		return 0, fmt.Errorf("%w: nil listener", ErrInvalidArgument)
	}
	return c.listeners.add(topic, fn), nil
}

// RemoveListener unregisters a listener. Unknown ids are ignored.
func (c *EventClient) RemoveListener(topic Topic, id ListenerID) error {
	if !topic.Valid() {
		return fmt.Errorf("%w: unknown topic %d", ErrInvalidArgument, topic)
	}
	if id == 0 {
		return fmt.Errorf("%w: empty listener id", ErrInvalidArgument)
	}
	c.listeners.remove(topic, id)
	return nil
}

// Start opens the event stream in the background. It is a no-op while the
// client is already running.
func (c *EventClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if len(c.topics) == 0 {
		return ErrNoTopicsSubscribed
	}

	c.running = true
	if !c.opts.SyncDispatch {
		ctx, cancel := context.WithCancel(context.Background())
		c.queue = newDispatchQueue(c.log, c.dispatcher, c.opts.DispatchQueueSize)
		c.stopRun = cancel
		go c.queue.run(ctx)
	}
	c.openSessionLocked()
	return nil
}

// Stop cancels the event stream. Failures racing with Stop never trigger a
// reconnect. Calling Stop on a stopped client is a no-op.
func (c *EventClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	c.running = false
	c.closeSessionLocked()
	if c.stopRun != nil {
		c.stopRun()
		c.stopRun = nil
	}
	c.setStateLocked(StateDisconnected)
	c.log.Info("event stream stopped")
	return nil
}

// Close stops the client and waits until the stream goroutines have exited.
// It must not be called from a listener.
func (c *EventClient) Close() error {
	if err := c.Stop(); err != nil {
		return err
	}

	c.mu.Lock()
	done, queue := c.done, c.queue
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	if queue != nil {
		<-queue.done
	}
	return nil
}

func (c *EventClient) IsConnected() bool {
	return c.State() == StateConnected
}

func (c *EventClient) State() State {
	return State(c.state.Load())
}

// GetURI returns the configured beacon node URL.
func (c *EventClient) GetURI() string {
	return c.opts.NodeURL
}

// Topics returns the subscription set in registry order.
func (c *EventClient) Topics() []Topic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topicsLocked()
}

func (c *EventClient) Stats() Stats {
	return c.stats.snapshot()
}

func (c *EventClient) topicsLocked() []Topic {
	topics := make([]Topic, 0, len(c.topics))
	for _, t := range AllTopics() {
		if _, ok := c.topics[t]; ok {
			topics = append(topics, t)
		}
	}
	return topics
}

func (c *EventClient) currentURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return eventsURL(c.nodeURL, c.opts.EventsPath, c.topicsLocked())
}

// openSessionLocked starts a new connection session. The session goroutine
// waits for the previous one to exit, so at most one stream is ever open.
func (c *EventClient) openSessionLocked() {
	c.session++
	ctx, cancel := context.WithCancel(context.Background())
	prev := c.done
	done := make(chan struct{})

	c.cancel = cancel
	c.done = done
	c.setStateLocked(StateConnecting)

	go c.run(ctx, c.session, prev, done, c.queue)
}

func (c *EventClient) closeSessionLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.session++
}

func (c *EventClient) setStateLocked(to State) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}

	connectionStateGauge.WithLabelValues(c.addr).Set(float64(to))
	c.log.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("connection state changed")

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(from, to)
	}
}

// transition applies a state change caused by the given session. It reports
// false when the session is stale, i.e. stopped or replaced.
func (c *EventClient) transition(session uint64, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if session != c.session || !c.running {
		return false
	}
	c.setStateLocked(to)
	return true
}

// run is the session loop: stream until failure, wait, reconnect.
func (c *EventClient) run(ctx context.Context, session uint64, prev <-chan struct{}, done chan struct{}, queue *dispatchQueue) {
	defer close(done)

	if prev != nil {
		<-prev
	}

	for {
		err := c.stream(ctx, session, c.currentURL(), queue)
		if ctx.Err() != nil {
			return
		}
		if !c.transition(session, StateFailed) {
			return
		}
		c.log.WithError(err).WithField("delay", c.opts.ReconnectDelay.String()).Warn("event stream failed, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.opts.ReconnectDelay):
		}

		c.stats.reconnects.Inc()
		reconnectsCounter.WithLabelValues(c.addr).Inc()
		if !c.transition(session, StateConnecting) {
			return
		}
	}
}

// stream performs one connection attempt and reads frames until it fails.
func (c *EventClient) stream(ctx context.Context, session uint64, url string, queue *dispatchQueue) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	for k, vs := range c.opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.log.WithField("url", url).Debug("connecting to event stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status code %d", ErrTransport, resp.StatusCode)
	}

	if !c.transition(session, StateConnected) {
		return ctx.Err()
	}
	c.log.WithField("url", url).Info("connected to event stream")

	var watchdog clockwork.Timer
	if c.opts.ReadTimeout > 0 {
		watchdog = c.clock.AfterFunc(c.opts.ReadTimeout, cancel)
		defer watchdog.Stop()
	}

	reader := sse.NewEventStreamReader(resp.Body, c.opts.MaxPayloadBytes+scannerHeadroom)
	for {
		record, err := reader.ReadEvent()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			switch {
			case attemptCtx.Err() != nil:
				return fmt.Errorf("%w: no data within %s", ErrTransport, c.opts.ReadTimeout)
			case errors.Is(err, io.EOF):
				return ErrStreamClosed
			default:
				return fmt.Errorf("%w: read event: %v", ErrTransport, err)
			}
		}
		if watchdog != nil {
			watchdog.Reset(c.opts.ReadTimeout)
		}

		c.handleFrame(ctx, parseFrame(record), queue)
	}
}

func (c *EventClient) handleFrame(ctx context.Context, f frame, queue *dispatchQueue) {
	if len(f.Data) == 0 {
		return
	}

	ev, err := c.decoder.Decode(f.Event, f.Data)
	if err != nil {
		c.stats.decodeFailures.Inc()
		reason := "unknown"
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			reason = string(decodeErr.Reason)
		}
		decodeFailuresCounter.WithLabelValues(reason).Inc()
		c.decodeLog.Do(func() {
			c.log.WithError(err).WithField("id", f.ID).Warn("dropping event that cannot be decoded")
		})
		return
	}

	c.stats.received.Inc()
	eventsReceivedCounter.WithLabelValues(ev.Topic().String()).Inc()

	if queue == nil {
		c.dispatcher.dispatch(ctx, ev)
		return
	}
	queue.enqueue(ev)
}
