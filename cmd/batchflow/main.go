package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"batchflow/internal/httpapi"
	"batchflow/pkg/config"
	"batchflow/pkg/dataset"
	"batchflow/pkg/db"
	"batchflow/pkg/health"
	"batchflow/pkg/logger"
	"batchflow/pkg/siigo"
	"batchflow/services/journal"
	"batchflow/services/schedule"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		journal.Module,
		dataset.Module,
		siigo.Module,
		fx.Provide(
			func(s *dataset.CSVSource) schedule.Source { return s },
			func(c *siigo.Client) schedule.Submitter { return c },
		),
		schedule.Module,
		health.Module,
		httpapi.Module,
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
