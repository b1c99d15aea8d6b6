package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultTestImage is the NATS server image integration tests run.
const DefaultTestImage = "nats:2.11.7-alpine"

// TestClient is a connected Client against a disposable NATS container.
// The container and connection are released by t.Cleanup.
type TestClient struct {
	Client *Client
	URL    string
}

type testServer struct {
	image     string
	jetstream bool
	timeout   time.Duration
}

// TestOption configures NewTestClient.
type TestOption func(*testServer)

// WithJetStream starts the server with JetStream enabled.
func WithJetStream() TestOption {
	return func(s *testServer) { s.jetstream = true }
}

// WithKV enables JetStream, which key/value buckets live on.
func WithKV() TestOption {
	return WithJetStream()
}

// WithImage overrides DefaultTestImage.
func WithImage(image string) TestOption {
	return func(s *testServer) { s.image = image }
}

// NewTestClient starts a NATS container and connects to it, failing t on
// any setup error.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	srv := &testServer{image: DefaultTestImage, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(srv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cmd := []string{"--port", "4222", "--http_port", "8222"}
	if srv.jetstream {
		cmd = append(cmd, "--js")
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        srv.image,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          cmd,
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/healthz").WithPort("8222/tcp"),
			),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start NATS container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := containerURL(ctx, container)
	if err != nil {
		t.Fatalf("resolve NATS container address: %v", err)
	}

	client, err := NewClient(url, WithTimeout(srv.timeout), WithMaxReconnects(0), WithName("semflow-test"))
	if err != nil {
		t.Fatalf("create NATS client: %v", err)
	}
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect to NATS: %v", err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	return &TestClient{Client: client, URL: url}
}

func containerURL(ctx context.Context, c testcontainers.Container) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := c.MappedPort(ctx, "4222")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("nats://%s:%s", host, port.Port()), nil
}
