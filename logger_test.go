package dockit_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/autom8ter/dockit"
	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			logger, err := dockit.NewLogger(level, map[string]any{"test": t.Name()})
			assert.NoError(t, err)
			assert.NotNil(t, logger)
			logger.Debug(context.Background(), "debug logger", nil)
			logger.Info(context.Background(), "info logger", map[string]any{"level": level})
			logger.Warn(context.Background(), "warn logger", nil)
			logger.Error(context.Background(), "error logger", fmt.Errorf("this is an error"), nil)
		})
	}
	t.Run("nop", func(t *testing.T) {
		logger := dockit.NewNopLogger()
		logger.Error(context.Background(), "discarded", fmt.Errorf("this is an error"), nil)
	})
}
