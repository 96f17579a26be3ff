package credit

import (
	"github.com/prompthive/costlens/internal/credit/repository"
	"github.com/prompthive/costlens/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
