package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	addr := fmt.Sprintf("inproc://events-test-%d", time.Now().UnixNano())
	publisher, err := NewPublisher(addr, nil)
	require.NoError(t, err)
	defer publisher.Close()

	subscriber, err := NewSubscriber(addr, TopicCPTApproved)
	require.NoError(t, err)
	defer subscriber.Close()
	require.NoError(t, subscriber.SetDeadline(2*time.Second))

	// Give the inproc pipe a moment to attach before publishing
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, publisher.Publish(TopicCPTApproved, map[string]any{
		"cpt_id":  "cpt-1",
		"version": 3,
	}))

	env, err := subscriber.Next()
	require.NoError(t, err)
	assert.Equal(t, TopicCPTApproved, env.Topic)
	assert.Equal(t, "cpt-1", env.Payload["cpt_id"])
	assert.False(t, env.Timestamp.IsZero())
}

func TestSubscriberTopicFilter(t *testing.T) {
	addr := fmt.Sprintf("inproc://events-filter-%d", time.Now().UnixNano())
	publisher, err := NewPublisher(addr, nil)
	require.NoError(t, err)
	defer publisher.Close()

	subscriber, err := NewSubscriber(addr, TopicEvaluationScored)
	require.NoError(t, err)
	defer subscriber.Close()
	require.NoError(t, subscriber.SetDeadline(500*time.Millisecond))

	time.Sleep(50 * time.Millisecond)

	// A non-matching topic must not be delivered
	require.NoError(t, publisher.Publish(TopicNetworkCompiled, map[string]any{"hash": "h"}))
	require.NoError(t, publisher.Publish(TopicEvaluationScored, map[string]any{"esi": 0.8}))

	env, err := subscriber.Next()
	require.NoError(t, err)
	assert.Equal(t, TopicEvaluationScored, env.Topic)
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	addr := fmt.Sprintf("inproc://events-nosub-%d", time.Now().UnixNano())
	publisher, err := NewPublisher(addr, nil)
	require.NoError(t, err)
	defer publisher.Close()

	require.NoError(t, publisher.Publish(TopicCPTRegistered, map[string]any{"cpt_id": "cpt-2"}))
}

func TestPublishAfterClose(t *testing.T) {
	addr := fmt.Sprintf("inproc://events-closed-%d", time.Now().UnixNano())
	publisher, err := NewPublisher(addr, nil)
	require.NoError(t, err)
	require.NoError(t, publisher.Close())

	assert.Error(t, publisher.Publish(TopicCPTApproved, nil))
	// Double close is a no-op
	assert.NoError(t, publisher.Close())
}
