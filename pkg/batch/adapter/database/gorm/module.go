package gorm

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
)

// NewProviderFx creates the Provider and closes its connections on shutdown.
func NewProviderFx(lc fx.Lifecycle, cfg *config.Config) *Provider {
	p := NewProvider(cfg)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.CloseAll()
		},
	})
	return p
}

// Module provides *Provider. Import the dialect subpackages to register their dialectors.
var Module = fx.Options(
	fx.Provide(NewProviderFx),
)
