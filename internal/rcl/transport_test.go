package rcl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_DeliversToMatchingSubscriptions(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "pubsub")

	var got []any
	_, err := n.CreateSubscription("chatter", "std_msgs/String", func(_ context.Context, msg any) error {
		got = append(got, msg)
		return nil
	})
	require.NoError(t, err)
	other, err := n.CreateSubscription("chatter", "std_msgs/Int32", noopMessage)
	require.NoError(t, err)

	pub, err := n.CreatePublisher("chatter", "std_msgs/String", QoSDefault)
	require.NoError(t, err)
	assert.Equal(t, 2, pub.SubscriptionCount())

	require.NoError(t, pub.Publish("a"))
	require.NoError(t, pub.Publish("b"))
	assert.Equal(t, 0, other.Pending(), "type mismatch is not routed")

	assert.Empty(t, drain(t, n))
	assert.Equal(t, []any{"a", "b"}, got)
}

func TestTransport_KeepLastDropsOldest(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "keeplast")

	var got []any
	sub, err := n.CreateSubscription("data", "pkg/Msg", func(_ context.Context, msg any) error {
		got = append(got, msg)
		return nil
	}, WithQoS(QoSProfile{History: HistoryKeepLast, Depth: 2}))
	require.NoError(t, err)

	pub, err := n.CreatePublisher("data", "pkg/Msg", QoSProfile{History: HistoryKeepLast, Depth: 2})
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		require.NoError(t, pub.Publish(i))
	}

	assert.Equal(t, 2, sub.Pending())
	assert.Equal(t, 3, sub.Dropped())
	drain(t, n)
	assert.Equal(t, []any{4, 5}, got)
}

func TestTransport_KeepAllKeepsEverything(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "keepall")

	sub, err := n.CreateSubscription("data", "pkg/Msg", noopMessage, WithQoS(QoSKeepAll))
	require.NoError(t, err)
	pub, err := n.CreatePublisher("data", "pkg/Msg", QoSKeepAll)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, pub.Publish(i))
	}
	assert.Equal(t, 50, sub.Pending())
	assert.Zero(t, sub.Dropped())
}

func TestTransport_IncompatibleQoSNotRouted(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "qos")

	reliable := QoSDefault
	sub, err := n.CreateSubscription("scan", "sensor_msgs/LaserScan", noopMessage, WithQoS(reliable))
	require.NoError(t, err)
	pub, err := n.CreatePublisher("scan", "sensor_msgs/LaserScan", QoSSensorData)
	require.NoError(t, err)

	require.NoError(t, pub.Publish("scan"))
	assert.Equal(t, 0, sub.Pending())
}

func TestTransport_TransientLocalReplaysToLateJoiners(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "latched")

	qos := QoSTransientLocal
	qos.Depth = 2
	pub, err := n.CreatePublisher("map", "nav_msgs/OccupancyGrid", qos)
	require.NoError(t, err)
	for _, m := range []string{"m1", "m2", "m3"} {
		require.NoError(t, pub.Publish(m))
	}

	var got []any
	_, err = n.CreateSubscription("map", "nav_msgs/OccupancyGrid", func(_ context.Context, msg any) error {
		got = append(got, msg)
		return nil
	}, WithQoS(qos))
	require.NoError(t, err)

	volatile, err := n.CreateSubscription("map", "nav_msgs/OccupancyGrid", noopMessage)
	require.NoError(t, err)
	assert.Equal(t, 0, volatile.Pending())

	drain(t, n)
	assert.Equal(t, []any{"m2", "m3"}, got)
}

func TestSubscribe_TypedCallback(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "typed")

	var got []int
	_, err := Subscribe(n, "numbers", "std_msgs/Int64", func(_ context.Context, v int) error {
		got = append(got, v)
		return nil
	})
	require.NoError(t, err)
	pub, err := n.CreatePublisher("numbers", "std_msgs/Int64", QoSDefault)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(7))
	require.NoError(t, pub.Publish("seven"))

	errs := drain(t, n)
	require.Len(t, errs, 1)
	assert.True(t, IsTypeMismatch(errs[0]))
	assert.Equal(t, []int{7}, got)
}

func TestSubscription_Validation(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "invalid")

	_, err := n.CreateSubscription("x", "pkg/X", nil)
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err))
	_, err = n.CreateSubscription("x", "", noopMessage)
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err))
	_, err = n.CreateSubscription("x", "pkg/X", noopMessage, WithQoS(QoSProfile{History: HistoryKeepLast}))
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err))
	_, err = n.CreatePublisher("x", "", QoSDefault)
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err))
}

func TestSubscription_DestroyStopsDelivery(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "stop")

	sub, err := n.CreateSubscription("x", "pkg/X", noopMessage)
	require.NoError(t, err)
	pub, err := n.CreatePublisher("x", "pkg/X", QoSDefault)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(1))
	assert.True(t, sub.IsReady())

	require.NoError(t, sub.Destroy())
	assert.False(t, sub.IsReady())
	_, ok := sub.Take()
	assert.False(t, ok)
	assert.Equal(t, 0, pub.SubscriptionCount())
	assert.True(t, IsInvalidHandle(sub.Destroy()))
}

func TestPublisher_PublishAfterShutdown(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Init(WithSignalHandlers(SignalHandlerNo)))
	n := newTestNode(t, c, "late")
	pub, err := n.CreatePublisher("x", "pkg/X", QoSDefault)
	require.NoError(t, err)

	require.NoError(t, c.Shutdown())
	assert.True(t, IsNotInitialized(pub.Publish(1)))
}
