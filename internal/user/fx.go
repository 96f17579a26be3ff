package user

import (
	"github.com/prompthive/costlens/internal/user/repository"
	"github.com/prompthive/costlens/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
