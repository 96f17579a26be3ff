package payment

import (
	"github.com/prompthive/costlens/internal/config"
	"github.com/prompthive/costlens/internal/payment/domain"
	"github.com/prompthive/costlens/internal/payment/repository"
	"github.com/prompthive/costlens/internal/payment/service"
	"github.com/prompthive/costlens/internal/payment/stripe"
	"go.uber.org/fx"
)

func provideAdapter(cfg config.Config) domain.Adapter {
	return stripe.NewAdapter(cfg.StripeWebhookSecret)
}

var Module = fx.Module("payment",
	fx.Provide(
		provideAdapter,
		repository.Provide,
		service.New,
	),
)
