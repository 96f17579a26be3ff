package subscription

import (
	"github.com/prompthive/costlens/internal/subscription/repository"
	"github.com/prompthive/costlens/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
