package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("clinic-service", &buf).
		WithComponent("journey").
		WithTenant("tenant-1").
		WithVisit("visit-9")

	log.Info().Str("status", "at_triage").Msg("visit advanced")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "clinic-service", line["service"])
	assert.Equal(t, "journey", line["component"])
	assert.Equal(t, "tenant-1", line["tenant_id"])
	assert.Equal(t, "visit-9", line["visit_id"])
	assert.Equal(t, "visit advanced", line["message"])
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Error().Msg("dropped") })
}
