package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tailingsiq/tailingsiq/internal/config"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown := Setup(context.Background(), config.TelemetryConfig{ServiceName: "tailingsiq"})
	assert.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_WithEndpoint(t *testing.T) {
	// the exporter connects lazily, so no collector is needed
	shutdown := Setup(context.Background(), config.TelemetryConfig{
		ServiceName:  "tailingsiq-test",
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
	})
	assert.NotNil(t, shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
