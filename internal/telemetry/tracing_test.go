package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "", "messaging-service", "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
