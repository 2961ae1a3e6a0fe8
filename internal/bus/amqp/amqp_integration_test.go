//go:build integration

package amqp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/models"
)

func setupRabbitMQContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:4.1-management-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Server startup complete"),
			wait.ForListeningPort("5672/tcp"),
		).WithDeadline(60 * time.Second),
		HostConfigModifier: func(hc *container.HostConfig) {},
	}

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start RabbitMQ container")

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5672")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = ctr.Terminate(context.Background())
	})

	return "amqp://guest:guest@" + host + ":" + port.Port() + "/"
}

func TestPublishSubscribe_RoundTrip(t *testing.T) {
	url := setupRabbitMQContainer(t)
	logger := common.NewSilentLogger()

	pubConn, err := Dial(url, logger)
	require.NoError(t, err)
	defer pubConn.Close()

	subConn, err := Dial(url, logger)
	require.NoError(t, err)
	defer subConn.Close()

	publisher := NewPublisher(pubConn, logger)
	subscriber := NewSubscriber(subConn, logger)

	received := make(chan models.Envelope, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = subscriber.Subscribe(ctx, models.SubjectBatchRequested, func(ctx context.Context, payload []byte, reply func(context.Context, []byte) error) error {
			var env models.Envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				return err
			}
			received <- env
			return nil
		})
	}()

	time.Sleep(500 * time.Millisecond) // allow queue binding to settle

	envelope := &models.Envelope{
		EventID:   "evt-1",
		EventType: models.SubjectBatchRequested,
		Source:    models.EventSource,
	}
	require.NoError(t, publisher.Publish(context.Background(), models.SubjectBatchRequested, envelope))

	select {
	case got := <-received:
		require.Equal(t, "evt-1", got.EventID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
