package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flashbots/go-utils/cli"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/flashbots/beacon-events/beaconclient"
	"github.com/flashbots/beacon-events/common"
	"github.com/flashbots/beacon-events/forwarder"
	"github.com/flashbots/beacon-events/services/status"
)

var (
	defaultBeaconURI   = cli.GetEnv("BEACON_URI", "http://localhost:5052")
	defaultTopics      = cli.GetEnv("TOPICS", "head")
	defaultEventsPath  = cli.GetEnv("EVENTS_PATH", beaconclient.DefaultEventsPath)
	defaultRedisURI    = cli.GetEnv("REDIS_URI", "")
	defaultRedisPrefix = cli.GetEnv("REDIS_PREFIX", forwarder.DefaultChannelPrefix)
	defaultStatusAddr  = cli.GetEnv("STATUS_ADDR", "localhost:9070")
	defaultLogJSON     = os.Getenv("LOG_JSON") != ""
	defaultLogLevel    = cli.GetEnv("LOG_LEVEL", "info")

	beaconURI      string
	topicsFlag     string
	eventsPath     string
	reconnectDelay time.Duration
	readTimeout    time.Duration
	redisURI       string
	redisPrefix    string
	statusAddr     string
	logJSON        bool
	logLevel       string
)

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringVar(&beaconURI, "beacon-uri", defaultBeaconURI, "beacon node base url")
	listenCmd.Flags().StringVar(&topicsFlag, "topics", defaultTopics, "comma separated event topics, e.g. head,block,finalized_checkpoint")
	listenCmd.Flags().StringVar(&eventsPath, "events-path", defaultEventsPath, "events endpoint path")
	listenCmd.Flags().DurationVar(&reconnectDelay, "reconnect-delay", beaconclient.DefaultReconnectDelay, "delay before reconnecting after a stream failure")
	listenCmd.Flags().DurationVar(&readTimeout, "read-timeout", 0, "reconnect when no event arrives within this duration (0 disables)")
	listenCmd.Flags().StringVar(&redisURI, "redis-uri", defaultRedisURI, "forward events to redis pub/sub at this address (empty disables)")
	listenCmd.Flags().StringVar(&redisPrefix, "redis-prefix", defaultRedisPrefix, "redis channel prefix, the topic is appended")
	listenCmd.Flags().StringVar(&statusAddr, "status-addr", defaultStatusAddr, "listen address of the status server (empty disables)")
	listenCmd.Flags().BoolVar(&logJSON, "json", defaultLogJSON, "log in JSON format instead of text")
	listenCmd.Flags().StringVar(&logLevel, "loglevel", defaultLogLevel, "log-level: trace, debug, info, warn/warning, error, fatal, panic")
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream events from a beacon node",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := common.LogSetup(logJSON, logLevel)
		if err != nil {
			return err
		}
		log.Infof("beacon-events %s", Version)

		topics, err := beaconclient.ParseTopics(topicsFlag)
		if err != nil {
			return err
		}

		client, err := beaconclient.NewEventClient(beaconclient.Options{
			NodeURL:        beaconURI,
			EventsPath:     eventsPath,
			Topics:         topics,
			ReconnectDelay: reconnectDelay,
			ReadTimeout:    readTimeout,
			Log:            log,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		for _, topic := range topics {
			if _, err := client.AddListener(topic, logEvent(log)); err != nil {
				return err
			}
		}

		if redisURI != "" {
			fwd, err := forwarder.NewRedisForwarder(redisURI, redisPrefix, log)
			if err != nil {
				return err
			}
			defer fwd.Close()

			for _, topic := range topics {
				if _, err := client.AddListener(topic, fwd.Listener()); err != nil {
					return err
				}
			}
			log.WithField("redis", redisURI).Info("forwarding events to redis")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := client.Start(); err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		if statusAddr != "" {
			srv := status.NewServer(statusAddr, client, log)
			g.Go(func() error { return srv.Start(ctx) })
		}
		g.Go(func() error {
			<-ctx.Done()
			log.Info("shutting down")
			return client.Close()
		})

		err = g.Wait()
		printSummary(cmd.OutOrStdout(), client.Stats())
		return err
	},
}

func logEvent(log *logrus.Entry) beaconclient.Listener {
	return func(_ context.Context, ev beaconclient.Event) error {
		entry := log.WithField("topic", ev.Topic().String())
		if slot := ev.Payload().Get("slot"); slot.Exists() {
			entry = entry.WithField("slot", slot.String())
		}
		entry.WithField("data", ev.Payload().String()).Info("event")
		return nil
	}
}

func printSummary(w io.Writer, stats beaconclient.Stats) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "received %d events, dispatched %d, dropped %d\n", stats.Received, stats.Dispatched, stats.Dropped)
	p.Fprintf(w, "decode failures %d, listener faults %d, reconnects %d\n", stats.DecodeFailures, stats.ListenerFaults, stats.Reconnects)
}
