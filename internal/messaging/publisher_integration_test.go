//go:build integration

package messaging_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"narrative-server/internal/messaging"
	"narrative-server/internal/models"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"go.uber.org/zap"
)

func TestRabbitMQStoryEventPublisher(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Skipf("Docker client init error: %v", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Skipf("Docker daemon is not running or accessible: %v", err)
	}
	cli.Close()

	ctx := context.Background()
	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)
	conn, err := messaging.ConnectRabbitMQ(ctx, url, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	publisher, err := messaging.NewRabbitMQStoryEventPublisher(conn, "story_events_test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = publisher.Close() })

	event := models.StoryEvent{
		Type:         models.EventDecisionMade,
		SessionID:    uuid.New(),
		Depth:        1,
		DecisionText: "Open it",
		OccurredAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, publisher.PublishStoryEvent(ctx, event))

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	var msg []byte
	require.Eventually(t, func() bool {
		delivery, ok, err := ch.Get("story_events_test", true)
		if err != nil || !ok {
			return false
		}
		assert.Equal(t, string(models.EventDecisionMade), delivery.Type)
		msg = delivery.Body
		return true
	}, 10*time.Second, 100*time.Millisecond)

	var got models.StoryEvent
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, event.SessionID, got.SessionID)
	assert.Equal(t, "Open it", got.DecisionText)
}
