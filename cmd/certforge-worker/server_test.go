//go:build integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/brightleaf/certforge/internal/app"
	"github.com/brightleaf/certforge/internal/common"
)

func setupRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "valkey/valkey:8",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections"),
			wait.ForListeningPort("6379/tcp"),
		).WithDeadline(60 * time.Second),
		HostConfigModifier: func(hc *container.HostConfig) {},
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Redis container")

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	_, err = client.Ping(ctx).Result()
	require.NoError(t, err)
	client.Close()

	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	return host + ":" + port.Port()
}

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

	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	return "amqp://guest:guest@" + host + ":" + port.Port() + "/"
}

// newTestCore constructs a real app.Core against throwaway Redis/RabbitMQ
// containers, mirroring how main() wires the worker.
func newTestCore(t *testing.T) *app.Core {
	t.Helper()

	t.Setenv("CERTFORGE_STORE_ADDR", setupRedisContainer(t))
	t.Setenv("CERTFORGE_BUS_URL", setupRabbitMQContainer(t))
	t.Setenv("CERTFORGE_LOG_LEVEL", "error")

	core, err := app.New("")
	require.NoError(t, err)
	t.Cleanup(core.Close)

	return core
}

func TestHealthEndpoint(t *testing.T) {
	core := newTestCore(t)
	ts := httptest.NewServer(buildMux(core))
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	core := newTestCore(t)
	ts := httptest.NewServer(buildMux(core))
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/healthz", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestVersionEndpoint(t *testing.T) {
	core := newTestCore(t)
	ts := httptest.NewServer(buildMux(core))
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, common.GetVersion(), body["version"])
}
