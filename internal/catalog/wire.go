//go:build wireinject
// +build wireinject

package catalog

import (
	"context"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tair/marketplace-catalog/internal/config"
)

// InitializeApp builds the catalog service from cfg. Metrics are registered with reg.
func InitializeApp(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, func(), error) {
	wire.Build(
		InfraSet,
		CatalogSet,
		DeliverySet,
	)
	return nil, nil, nil
}
