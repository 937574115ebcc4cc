package core

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const activationKeyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var activationKeyPattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

// GenerateActivationKey produces an 8-character key from [A-Z0-9].
func GenerateActivationKey() (string, error) {
	buf := make([]byte, 8)
	max := big.NewInt(int64(len(activationKeyCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate activation key: %w", err)
		}
		buf[i] = activationKeyCharset[n.Int64()]
	}
	return string(buf), nil
}

// ProvisionDeviceRequest is the full device descriptor supplied by the
// operator. ActivationKey may be left empty to have one generated.
type ProvisionDeviceRequest struct {
	DeviceID       int64    `json:"deviceID"`
	TaxpayerID     uint     `json:"taxpayerID"`
	SerialNo       string   `json:"deviceSerialNo"`
	ModelName      string   `json:"deviceModelName"`
	ModelVersion   string   `json:"deviceModelVersion"`
	ActivationKey  string   `json:"activationKey"`
	OperatingMode  int      `json:"operatingMode"`
	BranchName     string   `json:"branchName"`
	BranchAddress  Address  `json:"branchAddress"`
	BranchContacts Contacts `json:"branchContacts"`
}

// ProvisionedDevice is the one response shape that carries the activation
// key in cleartext. All other read paths serialize Device, whose key field
// is structurally excluded.
type ProvisionedDevice struct {
	Device
	ActivationKey string `json:"activation_key"`
}

// ProvisioningService creates devices atomically with their one-time
// activation key.
type ProvisioningService struct {
	store  DataStore
	audit  *AuditRecorder
	logger *logrus.Logger
}

func NewProvisioningService(store DataStore, audit *AuditRecorder, logger *logrus.Logger) *ProvisioningService {
	return &ProvisioningService{
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

// Provision validates the descriptor, creates the device with status Active
// and writes the audit record, all in one transaction. Racing requests on
// the same device id or serial resolve via the store's unique indexes:
// exactly one wins, the rest observe CONFLICT.
func (s *ProvisioningService) Provision(ctx context.Context, req ProvisionDeviceRequest, ip string) (*ProvisionedDevice, error) {
	if req.DeviceID <= 0 {
		return nil, validationf("device id must be a positive number")
	}
	if req.SerialNo == "" || len(req.SerialNo) > 20 {
		return nil, validationf("serial number is required and must be at most 20 characters")
	}
	if req.OperatingMode != OperatingModeOnline && req.OperatingMode != OperatingModeOffline {
		return nil, validationf("unknown operating mode %d", req.OperatingMode)
	}

	key := req.ActivationKey
	if key == "" {
		generated, err := GenerateActivationKey()
		if err != nil {
			return nil, err
		}
		key = generated
	} else if !activationKeyPattern.MatchString(key) {
		return nil, validationf("activation key must be exactly 8 characters from A-Z0-9")
	}

	// The owning taxpayer must exist; it need not be active.
	if _, err := s.store.GetTaxpayer(ctx, req.TaxpayerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaxpayerNotFound
		}
		return nil, err
	}

	device := &Device{
		DeviceID:       req.DeviceID,
		TaxpayerID:     req.TaxpayerID,
		SerialNo:       req.SerialNo,
		ModelName:      req.ModelName,
		ModelVersion:   req.ModelVersion,
		ActivationKey:  key,
		OperatingMode:  req.OperatingMode,
		Status:         DeviceStatusActive,
		BranchName:     req.BranchName,
		BranchAddress:  req.BranchAddress,
		BranchContacts: req.BranchContacts,
	}

	var entry *AuditLog
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx DataStore) error {
		if err := tx.CreateDevice(ctx, device); err != nil {
			if IsUniqueViolation(err) {
				return s.conflictFor(ctx, req)
			}
			return err
		}
		entry = &AuditLog{
			EntityType: EntityTypeDevice,
			EntityID:   entityID(device.ID),
			Action:     ActionProvision,
			DeviceID:   deviceRef(device.DeviceID),
			IPAddress:  ip,
			Details:    fmt.Sprintf("provisioned serial=%s for taxpayer %d", device.SerialNo, device.TaxpayerID),
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Export(entry)

	s.logger.WithFields(logrus.Fields{
		"device_id":   device.DeviceID,
		"taxpayer_id": device.TaxpayerID,
		"serial_no":   device.SerialNo,
	}).Info("Device provisioned")

	return &ProvisionedDevice{Device: *device, ActivationKey: key}, nil
}

// conflictFor names the colliding identifier so the operator can choose a
// new one instead of guessing.
func (s *ProvisioningService) conflictFor(ctx context.Context, req ProvisionDeviceRequest) error {
	if _, err := s.store.GetDeviceByDeviceID(ctx, req.DeviceID); err == nil {
		return conflictf("device id %d already in use", req.DeviceID)
	}
	return conflictf("serial number %q already in use", req.SerialNo)
}
