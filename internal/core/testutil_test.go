package core

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"example.com/fdms/services/admin/config"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestStore opens a fresh in-memory sqlite database per test. The
// unique DSN keeps parallel tests from sharing state.
func setupTestStore(t *testing.T) DataStore {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return NewDataStore(db)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestRegistry builds the full service registry over an in-memory store.
// Cache and messaging stay nil; services run in their degraded mode.
func newTestRegistry(t *testing.T) (*ServiceRegistry, DataStore) {
	t.Helper()

	store := setupTestStore(t)
	services, err := NewServiceRegistry(ServiceConfig{
		Store:  store,
		Logger: quietLogger(),
		Auth: config.AuthConfig{
			SessionTTL: time.Hour,
			BcryptCost: bcrypt.MinCost,
		},
		Gateway: config.GatewayConfig{},
	})
	if err != nil {
		t.Fatalf("build service registry: %v", err)
	}
	return services, store
}

func onboardTestTaxpayer(t *testing.T, services *ServiceRegistry, tin string) *Taxpayer {
	t.Helper()

	taxpayer, err := services.Taxpayers.Onboard(context.Background(), OnboardTaxpayerRequest{
		TIN:  tin,
		Name: "Taxpayer " + tin,
	}, "127.0.0.1")
	if err != nil {
		t.Fatalf("onboard taxpayer %s: %v", tin, err)
	}
	return taxpayer
}

func provisionTestDevice(t *testing.T, services *ServiceRegistry, taxpayerID uint, deviceID int64) *ProvisionedDevice {
	t.Helper()

	device, err := services.Provisioning.Provision(context.Background(), ProvisionDeviceRequest{
		DeviceID:   deviceID,
		TaxpayerID: taxpayerID,
		SerialNo:   fmt.Sprintf("SN-%d", deviceID),
	}, "127.0.0.1")
	if err != nil {
		t.Fatalf("provision device %d: %v", deviceID, err)
	}
	return device
}

func configWithMax(max int) config.GatewayConfig {
	return config.GatewayConfig{
		DefaultPageSize:     20,
		DefaultTimePageSize: 50,
		MaxPageSize:         max,
	}
}

func auditCount(t *testing.T, store DataStore) int64 {
	t.Helper()

	count, err := store.CountAuditLogs(context.Background())
	if err != nil {
		t.Fatalf("count audit logs: %v", err)
	}
	return count
}
