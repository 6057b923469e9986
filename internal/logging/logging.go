package logging

import (
	"go.uber.org/zap"
)

// New creates the process-wide structured logger. Dev builds use the
// human-readable development encoder; everything else gets production JSON.
func New(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.InitialFields = map[string]interface{}{
		"service": "gatekeeper",
	}
	return cfg.Build()
}
