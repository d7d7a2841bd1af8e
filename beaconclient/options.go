package beaconclient

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	DefaultEventsPath            = "/eth/v1/events"
	DefaultReconnectDelay        = 5 * time.Second
	DefaultDialTimeout           = 30 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultDispatchQueueSize     = 1024
)

// Options configures an EventClient. Only NodeURL is required.
type Options struct {
	// NodeURL is the beacon node base URL, e.g. http://localhost:5052.
	NodeURL string
	// EventsPath is appended to NodeURL.
	EventsPath string
	// Topics are subscribed when the client is created.
	Topics []Topic

	// ReconnectDelay is the fixed wait before reconnecting after a transport
	// failure. Resubscription reconnects are immediate.
	ReconnectDelay time.Duration

	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
	// ReadTimeout fails the connection when no frame arrives in time.
	// Zero disables it.
	ReadTimeout time.Duration
	Headers     http.Header
	// HTTPClient replaces the client built from the timeouts above. It must
	// not set a Timeout, since that would bound the whole stream.
	HTTPClient *http.Client `copier:"-"`

	// MaxPayloadBytes bounds a single frame.
	MaxPayloadBytes int

	// DispatchQueueSize bounds the events waiting for listeners.
	DispatchQueueSize int
	// SyncDispatch runs listeners on the stream reader goroutine.
	SyncDispatch bool

	Log   *logrus.Entry   `copier:"-"`
	Clock clockwork.Clock `copier:"-"`
	// OnStateChange is called on every state transition while the client
	// lock is held; it must not call back into the client.
	OnStateChange func(from, to State) `copier:"-"`
}

func defaultOptions() Options {
	return Options{
		EventsPath:            DefaultEventsPath,
		ReconnectDelay:        DefaultReconnectDelay,
		DialTimeout:           DefaultDialTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		MaxPayloadBytes:       DefaultMaxPayloadBytes,
		DispatchQueueSize:     DefaultDispatchQueueSize,
		Log:                   logrus.NewEntry(logrus.StandardLogger()),
		Clock:                 clockwork.NewRealClock(),
	}
}

// withDefaults overlays the non-zero fields of opts onto the defaults.
// Reference fields are skipped by copier and assigned as is.
func (opts Options) withDefaults() (Options, error) {
	merged := defaultOptions()
	if err := copier.CopyWithOption(&merged, &opts, copier.Option{IgnoreEmpty: true}); err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	merged.HTTPClient = opts.HTTPClient
	merged.OnStateChange = opts.OnStateChange
	if opts.Log != nil {
		merged.Log = opts.Log
	}
	if opts.Clock != nil {
		merged.Clock = opts.Clock
	}
	return merged, nil
}

func (opts Options) validate() error {
	if strings.TrimSpace(opts.NodeURL) == "" {
		return ErrMissingNodeURL
	}
	if opts.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: reconnect delay must be positive", ErrConfiguration)
	}
	if opts.DispatchQueueSize <= 0 && !opts.SyncDispatch {
		return fmt.Errorf("%w: dispatch queue size must be positive", ErrConfiguration)
	}
	return nil
}

func (opts Options) httpClient() *http.Client {
	if opts.HTTPClient != nil {
		return opts.HTTPClient
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   opts.DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
			MaxIdleConns:          1,
		},
	}
}

// parseNodeURL accepts addresses with or without a scheme.
func parseNodeURL(addr string) (*url.URL, error) {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: parse beacon node url %q: %v", ErrConfiguration, addr, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: beacon node url %q has no host", ErrConfiguration, addr)
	}
	return u, nil
}

// eventsURL builds {node}{path}?topics=a,b with the topics in registry order.
func eventsURL(node *url.URL, path string, topics []Topic) string {
	u := *node
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")

	tags := make([]string, len(topics))
	for i, t := range topics {
		tags[i] = t.String()
	}
	query := "topics=" + strings.Join(tags, ",")
	if u.RawQuery != "" {
		query = u.RawQuery + "&" + query
	}
	u.RawQuery = query
	return u.String()
}
