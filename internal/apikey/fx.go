package apikey

import (
	"github.com/prompthive/costlens/internal/apikey/repository"
	"github.com/prompthive/costlens/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
