package journal

import (
	"go.uber.org/fx"
)

var Module = fx.Module("journal.service",
	fx.Provide(
		NewValidator,
		NewFormatter,
	),
)
