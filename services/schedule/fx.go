package schedule

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("schedule.service",
	fx.Provide(
		NewLocation,
		NewStore,
		NewPipeline,
		NewScheduler,
	),
	fx.Invoke(
		migrate,
		registerScheduler,
	),
)

func migrate(store *Store) error {
	return store.Migrate()
}

func registerScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}
