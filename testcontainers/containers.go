// Package testcontainers starts the Postgres and Redis instances the
// integration tests run against. Docker must be reachable; tests calling into
// this package skip themselves under -short.
package testcontainers

import (
	"context"
	"fmt"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresPort = "5432/tcp"
	redisPort    = "6379/tcp"

	dbUser     = "trips"
	dbPassword = "trips"
	dbName     = "trips_test"
)

// Endpoint is a started container and the host port it is reachable on.
type Endpoint struct {
	testcontainers.Container
	Host string
	Port string
}

func (e *Endpoint) Address() string {
	return e.Host + ":" + e.Port
}

func start(ctx context.Context, req testcontainers.ContainerRequest, port string) (*Endpoint, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)

		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		_ = container.Terminate(ctx)

		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &Endpoint{Container: container, Host: host, Port: mapped.Port()}, nil
}

// PostgresContainer is a throwaway database with an empty schema.
type PostgresContainer struct {
	*Endpoint
}

func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	ep, err := start(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{postgresPort},
		Env: map[string]string{
			"POSTGRES_USER":     dbUser,
			"POSTGRES_PASSWORD": dbPassword,
			"POSTGRES_DB":       dbName,
		},
		// postgres logs readiness twice: once for the init run and once for real
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(postgresPort),
		),
	}, postgresPort)
	if err != nil {
		return nil, err
	}

	return &PostgresContainer{Endpoint: ep}, nil
}

func (c *PostgresContainer) GetDSN() string {
	return fmt.Sprintf("postgresql://%s:%s@%s/%s?sslmode=disable", dbUser, dbPassword, c.Address(), dbName)
}

type RedisContainer struct {
	*Endpoint
}

func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	ep, err := start(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{redisPort},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, redisPort)
	if err != nil {
		return nil, err
	}

	return &RedisContainer{Endpoint: ep}, nil
}
