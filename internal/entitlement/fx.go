package entitlement

import (
	"github.com/prompthive/costlens/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement",
	fx.Provide(service.New),
)
