package obs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/obs"
)

func TestInitTracerExporters(t *testing.T) {
	shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{Exporter: "none"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = obs.InitTracer(context.Background(), obs.TracingConfig{Exporter: "zipkin"})
	require.ErrorContains(t, err, "unsupported tracing exporter")
}
