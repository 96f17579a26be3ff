package usage

import (
	"github.com/prompthive/costlens/internal/usage/repository"
	"github.com/prompthive/costlens/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
