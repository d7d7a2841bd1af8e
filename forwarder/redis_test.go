package forwarder

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/beacon-events/beaconclient"
)

func setupTestForwarder(t *testing.T) (*RedisForwarder, *redis.Client) {
	t.Helper()

	redisTestServer, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(redisTestServer.Close)

	log := logrus.NewEntry(logrus.New())
	fwd, err := NewRedisForwarder(redisTestServer.Addr(), "", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fwd.Close() })

	sub := redis.NewClient(&redis.Options{Addr: redisTestServer.Addr()})
	t.Cleanup(func() { _ = sub.Close() })
	return fwd, sub
}

func TestRedisForwarderPublishes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fwd, client := setupTestForwarder(t)
	require.Equal(t, "beacon-events:head", fwd.Channel(beaconclient.TopicHead))

	pubsub := client.Subscribe(ctx, fwd.Channel(beaconclient.TopicHead))
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	ev := beaconclient.NewEvent(beaconclient.TopicHead, []byte(`{"slot":"10","block":"0xabc"}`))
	require.NoError(t, fwd.Listener()(ctx, ev))

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "beacon-events:head", msg.Channel)
	require.Equal(t, `{"slot":"10","block":"0xabc"}`, msg.Payload)
}

func TestRedisForwarderUnreachable(t *testing.T) {
	redisTestServer, err := miniredis.Run()
	require.NoError(t, err)
	addr := redisTestServer.Addr()
	redisTestServer.Close()

	_, err = NewRedisForwarder(addr, "x:", logrus.NewEntry(logrus.New()))
	require.Error(t, err)
}

func TestRedisForwarderPublishError(t *testing.T) {
	redisTestServer, err := miniredis.Run()
	require.NoError(t, err)

	fwd, err := NewRedisForwarder(redisTestServer.Addr(), "x:", logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	defer fwd.Close()

	redisTestServer.Close()
	ev := beaconclient.NewEvent(beaconclient.TopicBlock, []byte(`{}`))
	require.Error(t, fwd.Listener()(context.Background(), ev))
}
