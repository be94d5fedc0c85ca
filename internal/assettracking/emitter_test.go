package assettracking

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogwell/fogwell/internal/ingest"
)

func TestLogEmitter(t *testing.T) {
	logger, hook := test.NewNullLogger()
	emitter := NewLogEmitter(logrus.NewEntry(logger))

	err := emitter.Emit(context.Background(), ingest.AssetTrackingEvent{Asset: "pump", Event: ingest.EventIngest, Service: "south", Plugin: "sinusoid"})
	require.NoError(t, err)

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "asset tracked", hook.LastEntry().Message)
	assert.Equal(t, "pump", hook.LastEntry().Data["asset"])
	assert.Equal(t, "sinusoid", hook.LastEntry().Data["plugin"])
}
