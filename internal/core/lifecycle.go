package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var tinPattern = regexp.MustCompile(`^[0-9]{10}$`)

// --- Taxpayer Service Implementation ---

type TaxpayerService struct {
	store  DataStore
	audit  *AuditRecorder
	logger *logrus.Logger
}

func NewTaxpayerService(store DataStore, audit *AuditRecorder, logger *logrus.Logger) *TaxpayerService {
	return &TaxpayerService{
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

// OnboardTaxpayerRequest carries the fields accepted at company onboarding.
type OnboardTaxpayerRequest struct {
	TIN             string `json:"tin"`
	Name            string `json:"name"`
	VATNumber       string `json:"vatNumber"`
	DayMaxHrs       int    `json:"dayMaxHrs"`
	NotificationHrs int    `json:"notificationHrs"`
	QRUrl           string `json:"qrUrl"`
}

// UpdateTaxpayerRequest carries the mutable taxpayer fields. Nil means
// "leave unchanged". The TIN is immutable and deliberately absent.
type UpdateTaxpayerRequest struct {
	Name            *string `json:"name"`
	VATNumber       *string `json:"vatNumber"`
	DayMaxHrs       *int    `json:"dayMaxHrs"`
	NotificationHrs *int    `json:"notificationHrs"`
	QRUrl           *string `json:"qrUrl"`
}

func validateDayHours(dayMaxHrs, notificationHrs int) error {
	if dayMaxHrs < 1 || dayMaxHrs > 48 {
		return validationf("day max hours must be between 1 and 48, got %d", dayMaxHrs)
	}
	if notificationHrs < 0 || notificationHrs > 12 {
		return validationf("day end notification hours must be between 0 and 12, got %d", notificationHrs)
	}
	return nil
}

// Onboard creates a taxpayer with status Active. The TIN must be 10 digits
// and unused.
func (s *TaxpayerService) Onboard(ctx context.Context, req OnboardTaxpayerRequest, ip string) (*Taxpayer, error) {
	if !tinPattern.MatchString(req.TIN) {
		return nil, validationf("tin must be exactly 10 digits")
	}
	if req.Name == "" {
		return nil, validationf("name is required")
	}
	if req.DayMaxHrs == 0 {
		req.DayMaxHrs = 24
	}
	if err := validateDayHours(req.DayMaxHrs, req.NotificationHrs); err != nil {
		return nil, err
	}

	taxpayer := &Taxpayer{
		TIN:                   req.TIN,
		Name:                  req.Name,
		VATNumber:             req.VATNumber,
		Status:                TaxpayerStatusActive,
		DayMaxHrs:             req.DayMaxHrs,
		DayEndNotificationHrs: req.NotificationHrs,
		QRUrl:                 req.QRUrl,
	}

	var entry *AuditLog
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx DataStore) error {
		if err := tx.CreateTaxpayer(ctx, taxpayer); err != nil {
			if IsUniqueViolation(err) {
				return conflictf("tin %s already registered", req.TIN)
			}
			return err
		}
		entry = &AuditLog{
			EntityType: EntityTypeTaxpayer,
			EntityID:   entityID(taxpayer.ID),
			Action:     ActionCreate,
			IPAddress:  ip,
			Details:    fmt.Sprintf("onboarded %q tin=%s", taxpayer.Name, taxpayer.TIN),
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Export(entry)

	s.logger.WithFields(logrus.Fields{
		"taxpayer_id": taxpayer.ID,
		"tin":         taxpayer.TIN,
	}).Info("Taxpayer onboarded")

	return taxpayer, nil
}

func (s *TaxpayerService) Get(ctx context.Context, id uint) (*Taxpayer, error) {
	taxpayer, err := s.store.GetTaxpayer(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaxpayerNotFound
		}
		return nil, err
	}
	return taxpayer, nil
}

// Update mutates the non-key taxpayer attributes and audits the change.
func (s *TaxpayerService) Update(ctx context.Context, id uint, req UpdateTaxpayerRequest, ip string) (*Taxpayer, error) {
	taxpayer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, validationf("name cannot be empty")
		}
		taxpayer.Name = *req.Name
	}
	if req.VATNumber != nil {
		taxpayer.VATNumber = *req.VATNumber
	}
	if req.DayMaxHrs != nil {
		taxpayer.DayMaxHrs = *req.DayMaxHrs
	}
	if req.NotificationHrs != nil {
		taxpayer.DayEndNotificationHrs = *req.NotificationHrs
	}
	if err := validateDayHours(taxpayer.DayMaxHrs, taxpayer.DayEndNotificationHrs); err != nil {
		return nil, err
	}
	if req.QRUrl != nil {
		taxpayer.QRUrl = *req.QRUrl
	}

	var entry *AuditLog
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx DataStore) error {
		if err := tx.UpdateTaxpayer(ctx, taxpayer); err != nil {
			return err
		}
		entry = &AuditLog{
			EntityType: EntityTypeTaxpayer,
			EntityID:   entityID(taxpayer.ID),
			Action:     ActionUpdate,
			IPAddress:  ip,
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Export(entry)

	return taxpayer, nil
}

// SetStatus toggles Active/Inactive. Re-setting the current status is
// rejected so callers always observe change semantics.
func (s *TaxpayerService) SetStatus(ctx context.Context, id uint, status, ip string) (*Taxpayer, error) {
	if status != TaxpayerStatusActive && status != TaxpayerStatusInactive {
		return nil, validationf("unknown taxpayer status %q", status)
	}

	taxpayer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if taxpayer.Status == status {
		return nil, invalidTransitionf("taxpayer is already %s", status)
	}

	taxpayer.Status = status
	action := ActionActivate
	if status == TaxpayerStatusInactive {
		action = ActionDeactivate
	}

	var entry *AuditLog
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx DataStore) error {
		if err := tx.UpdateTaxpayer(ctx, taxpayer); err != nil {
			return err
		}
		entry = &AuditLog{
			EntityType: EntityTypeTaxpayer,
			EntityID:   entityID(taxpayer.ID),
			Action:     action,
			IPAddress:  ip,
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Export(entry)

	s.logger.WithFields(logrus.Fields{
		"taxpayer_id": taxpayer.ID,
		"status":      status,
	}).Info("Taxpayer status changed")

	return taxpayer, nil
}

// --- Device Service Implementation ---

type DeviceService struct {
	store  DataStore
	audit  *AuditRecorder
	logger *logrus.Logger
}

func NewDeviceService(store DataStore, audit *AuditRecorder, logger *logrus.Logger) *DeviceService {
	return &DeviceService{
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

// deviceStatusTransitions is the legal status state machine. Revoked has no
// outgoing edges.
var deviceStatusTransitions = map[string][]string{
	DeviceStatusActive:  {DeviceStatusBlocked, DeviceStatusRevoked},
	DeviceStatusBlocked: {DeviceStatusActive, DeviceStatusRevoked},
	DeviceStatusRevoked: {},
}

var deviceStatusActions = map[string]string{
	DeviceStatusActive:  ActionActivate,
	DeviceStatusBlocked: ActionBlock,
	DeviceStatusRevoked: ActionRevoke,
}

// Get looks up a device by its operator-assigned device id.
func (s *DeviceService) Get(ctx context.Context, deviceID int64) (*Device, error) {
	device, err := s.store.GetDeviceByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return device, nil
}

// SetStatus applies a status transition per the transition table. Revoked
// is terminal; requesting any move out of it fails with TERMINAL_STATE.
func (s *DeviceService) SetStatus(ctx context.Context, deviceID int64, status, ip string) (*Device, error) {
	if _, ok := deviceStatusTransitions[status]; !ok {
		return nil, validationf("unknown device status %q", status)
	}

	device, err := s.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.Status == DeviceStatusRevoked {
		return nil, ErrDeviceRevoked
	}

	allowed := false
	for _, next := range deviceStatusTransitions[device.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, invalidTransitionf("cannot move device from %s to %s", device.Status, status)
	}

	device.Status = status

	var entry *AuditLog
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx DataStore) error {
		if err := tx.UpdateDevice(ctx, device); err != nil {
			return err
		}
		entry = &AuditLog{
			EntityType: EntityTypeDevice,
			EntityID:   entityID(device.ID),
			Action:     deviceStatusActions[status],
			DeviceID:   deviceRef(device.DeviceID),
			IPAddress:  ip,
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Export(entry)

	s.logger.WithFields(logrus.Fields{
		"device_id": device.DeviceID,
		"status":    status,
	}).Info("Device status changed")

	return device, nil
}

// SetMode toggles the submission channel. Mode is independent of status:
// a blocked device's mode may still change, since mode reflects how
// receipts are submitted, not whether the device is authorized.
func (s *DeviceService) SetMode(ctx context.Context, deviceID int64, mode int, ip string) (*Device, error) {
	if mode != OperatingModeOnline && mode != OperatingModeOffline {
		return nil, validationf("unknown operating mode %d", mode)
	}

	device, err := s.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.OperatingMode == mode {
		return nil, invalidTransitionf("device is already in mode %d", mode)
	}

	device.OperatingMode = mode

	var entry *AuditLog
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx DataStore) error {
		if err := tx.UpdateDevice(ctx, device); err != nil {
			return err
		}
		entry = &AuditLog{
			EntityType: EntityTypeDevice,
			EntityID:   entityID(device.ID),
			Action:     ActionSetMode,
			DeviceID:   deviceRef(device.DeviceID),
			IPAddress:  ip,
			Details:    fmt.Sprintf("operating mode set to %d", mode),
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Export(entry)

	return device, nil
}
