// Package testutils starts the backing services integration tests run against.
// Each helper honours an environment override so CI can point at existing
// services, and skips under -short or when no container runtime is available.
package testutils

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 90 * time.Second

// MongoURI returns a connection string for a throwaway MongoDB.
// TEST_MONGO_URI overrides the container.
func MongoURI(t *testing.T) string {
	t.Helper()
	if uri := os.Getenv("TEST_MONGO_URI"); uri != "" {
		return uri
	}
	endpoint := start(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(startupTimeout),
	})
	return "mongodb://" + endpoint
}

// AMQPURL returns a connection string for a throwaway RabbitMQ.
// TEST_AMQP_URL overrides the container.
func AMQPURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("TEST_AMQP_URL"); url != "" {
		return url
	}
	endpoint := start(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(startupTimeout),
	})
	return fmt.Sprintf("amqp://guest:guest@%s/", endpoint)
}

// PostgresDSN returns a DSN for a throwaway PostgreSQL database.
// TEST_DB_DSN overrides the container.
func PostgresDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DB_DSN"); dsn != "" {
		return dsn
	}
	endpoint := start(t, testcontainers.ContainerRequest{
		Image: "postgres:15",
		Env: map[string]string{
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_USER":     "test",
			"POSTGRES_DB":       "tickets",
		},
		ExposedPorts: []string{"5432/tcp"},
		// The server restarts once after initdb; the second line is the real one.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(startupTimeout),
	})
	return fmt.Sprintf("postgres://test:test@%s/tickets?sslmode=disable", endpoint)
}

// start runs req and returns host:port of its single exposed port.
func start(t *testing.T, req testcontainers.ContainerRequest) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("%s endpoint: %v", req.Image, err)
	}
	return endpoint
}
