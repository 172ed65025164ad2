package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/6over3/webplatform/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg   config.LogConfig
		debug bool
	}{
		{cfg: config.LogConfig{Level: "debug", Format: "console"}, debug: true},
		{cfg: config.LogConfig{Level: "info", Format: "json"}},
		{cfg: config.LogConfig{Level: "warn"}},
	}
	for _, tt := range tests {
		l, err := New(tt.cfg)
		require.NoError(t, err, "%+v", tt.cfg)
		assert.Equal(t, tt.debug, l.Core().Enabled(zap.DebugLevel), "%+v", tt.cfg)
		assert.True(t, l.Core().Enabled(zap.ErrorLevel))
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud", Format: "console"})
	require.Error(t, err)
	_, err = New(config.LogConfig{Level: "info", Format: "xml"})
	require.Error(t, err)
}
