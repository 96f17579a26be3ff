package migration

import (
	"strings"

	apikeydomain "github.com/prompthive/costlens/internal/apikey/domain"
	"github.com/prompthive/costlens/internal/config"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	paymentdomain "github.com/prompthive/costlens/internal/payment/domain"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	"github.com/prompthive/costlens/internal/seed"
	subdomain "github.com/prompthive/costlens/internal/subscription/domain"
	usagedomain "github.com/prompthive/costlens/internal/usage/domain"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql installs are dev setups; let gorm derive
			// the schema from the models.
			if err := conn.AutoMigrate(
				&plandomain.Plan{},
				&userdomain.User{},
				&creditdomain.CreditEntry{},
				&usagedomain.UsageMetric{},
				&subdomain.Subscription{},
				&paymentdomain.WebhookEvent{},
				&apikeydomain.APIKey{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureDefaultPlans(conn)
	}),
)
