package core

import (
	"errors"

	"example.com/fdms/services/admin/config"
	"example.com/fdms/services/admin/internal/infrastructure"
	"github.com/sirupsen/logrus"
)

// ServiceRegistry holds all domain services.
type ServiceRegistry struct {
	Taxpayers    *TaxpayerService
	Devices      *DeviceService
	Provisioning *ProvisioningService
	Query        *QueryService
	Auth         *AuthService
	Ingest       *IngestService
}

// ServiceConfig bundles the dependencies the registry wires together.
// Cache and Messaging are optional; services degrade to the database when
// they are nil.
type ServiceConfig struct {
	Store     DataStore
	Cache     *infrastructure.Cache
	Messaging *infrastructure.Messaging
	Logger    *logrus.Logger
	Auth      config.AuthConfig
	Gateway   config.GatewayConfig
}

func NewServiceRegistry(cfg ServiceConfig) (*ServiceRegistry, error) {
	if cfg.Store == nil {
		return nil, errors.New("service registry requires a data store")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	audit := NewAuditRecorder(cfg.Messaging, cfg.Logger)

	return &ServiceRegistry{
		Taxpayers:    NewTaxpayerService(cfg.Store, audit, cfg.Logger),
		Devices:      NewDeviceService(cfg.Store, audit, cfg.Logger),
		Provisioning: NewProvisioningService(cfg.Store, audit, cfg.Logger),
		Query:        NewQueryService(cfg.Store, cfg.Gateway),
		Auth:         NewAuthService(cfg.Store, cfg.Cache, audit, cfg.Logger, cfg.Auth.SessionTTL, cfg.Auth.BcryptCost),
		Ingest:       NewIngestService(cfg.Store, cfg.Logger),
	}, nil
}
