package telemetry

import (
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig controls GORM query spans.
type DBTracingConfig struct {
	Enabled    bool
	DBSystem   string
	LogFullSQL bool
}

// RegisterDBTracing installs the otelgorm plugin so every store call made
// with a traced context gets a child span.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	dbSystem := cfg.DBSystem
	if dbSystem == "" {
		dbSystem = "postgresql"
	}
	opts := []otelgorm.Option{otelgorm.WithDBName(dbSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	logger.Info("Database tracing enabled",
		zap.String("db_system", dbSystem),
		zap.Bool("log_full_sql", cfg.LogFullSQL),
	)
	return nil
}
