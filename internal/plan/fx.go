package plan

import (
	"github.com/prompthive/costlens/internal/plan/repository"
	"github.com/prompthive/costlens/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
