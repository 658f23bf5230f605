//go:build wireinject

package app

import (
	"context"

	"tradebot/internal/config"

	"github.com/google/wire"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		provideBroker,
		provideRiskManager,
		provideEngine,
		provideBreaker,
		provideStores,
		provideNotifier,
		provideManager,
		provideServer,
		newApp,
	)
	return nil, nil, nil
}
