//go:build integration

package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisBackend(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate redis: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	addr := strings.TrimPrefix(uri, "redis://")

	n := 0
	runBackendContract(t, func(t *testing.T) Backend {
		n++
		r, err := DialRedis(ctx, addr, "", 0, fmt.Sprintf("test%d:", n))
		require.NoError(t, err)
		t.Cleanup(func() { _ = r.Close() })
		return r
	})
}
