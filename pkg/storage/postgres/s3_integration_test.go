//go:build integration

package postgres

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/portstats/pkg/storage"
)

// setupMinIO creates a MinIO testcontainer and returns an S3Client configured to use it
func setupMinIO(t *testing.T) *S3Client {
	t.Helper()
	ctx := context.Background()

	minioContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "minioadmin",
				"MINIO_ROOT_PASSWORD": "minioadmin",
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start MinIO container")
	t.Cleanup(func() {
		if err := minioContainer.Terminate(ctx); err != nil {
			t.Logf("Warning: Failed to terminate MinIO container: %v", err)
		}
	})

	host, err := minioContainer.Host(ctx)
	require.NoError(t, err)
	port, err := minioContainer.MappedPort(ctx, "9000")
	require.NoError(t, err)

	client, err := NewS3Client(ctx, storage.Config{
		S3Endpoint:     "http://" + host + ":" + port.Port(),
		S3AccessKey:    "minioadmin",
		S3SecretKey:    "minioadmin",
		S3Bucket:       "portstats-archive",
		S3Region:       "us-east-1",
		S3UsePathStyle: true,
	})
	require.NoError(t, err, "Failed to create S3 client")
	return client
}

func TestS3Client_Archive_Integration(t *testing.T) {
	client := setupMinIO(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, client.HealthCheck(ctx))

	body := `{"id":"integration","os":{"macports_version":"2.9.3"},"active_ports":[{"name":"curl"}]}`
	require.NoError(t, client.PutObject(ctx, "submissions/2026/03/15/1.json", strings.NewReader(body), "application/json"))
	require.NoError(t, client.PutObject(ctx, "submissions/2026/03/16/2.json", strings.NewReader("{}"), "application/json"))

	_, err := client.GetObject(ctx, "submissions/does-not-exist.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	rc, err := client.GetObject(ctx, "submissions/2026/03/15/1.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	keys, err := client.ListKeys(ctx, "submissions/")
	require.NoError(t, err)
	assert.Equal(t, []string{"submissions/2026/03/15/1.json", "submissions/2026/03/16/2.json"}, keys)
}
