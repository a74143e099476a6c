package connector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gatelimit/testkit"
)

func TestRedisConnectorIntegration(t *testing.T) {
	conn := testkit.NewRedisContainerConnector(t)
	ctx := context.Background()

	assert.True(t, conn.IsHealthy())
	require.NoError(t, conn.HealthCheck(ctx))

	client := conn.GetClient()
	key := "connector:" + testkit.NewID()
	require.NoError(t, client.Set(ctx, key, "v", 0).Err())
	val, err := client.Get(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}
