package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IngestService records fiscal-day and receipt facts produced by the
// device-side fiscal protocol. It performs no control-plane mutations and
// writes no audit rows: the audit trail covers operator actions, these are
// machine-produced facts the gateway republishes for the admin views.
type IngestService struct {
	store  DataStore
	logger *logrus.Logger
}

func NewIngestService(store DataStore, logger *logrus.Logger) *IngestService {
	return &IngestService{
		store:  store,
		logger: logger,
	}
}

// FiscalDayFact is one fiscal-day state snapshot from the protocol gateway.
type FiscalDayFact struct {
	DeviceID            int64      `json:"deviceID"`
	FiscalDayNo         int        `json:"fiscalDayNo"`
	Status              int        `json:"status"`
	OpenedAt            time.Time  `json:"fiscalDayOpened"`
	ClosedAt            *time.Time `json:"fiscalDayClosed"`
	LastReceiptGlobalNo int64      `json:"lastReceiptGlobalNo"`
}

// ReceiptFact is one issued receipt from the protocol gateway.
type ReceiptFact struct {
	ReceiptID       int64      `json:"receiptID"`
	DeviceID        int64      `json:"deviceID"`
	ReceiptType     int        `json:"receiptType"`
	Currency        string     `json:"receiptCurrency"`
	InvoiceNo       string     `json:"invoiceNo"`
	ReceiptDate     time.Time  `json:"receiptDate"`
	Total           float64    `json:"receiptTotal"`
	ValidationColor string     `json:"validationColor"`
	ServerDate      *time.Time `json:"serverDate"`
}

// RecordFiscalDay upserts the (device, day number) snapshot, so repeated
// status updates for the same day converge on the latest state.
func (s *IngestService) RecordFiscalDay(ctx context.Context, fact FiscalDayFact) error {
	if fact.Status < FiscalDayClosed || fact.Status > FiscalDayCloseFailed {
		return validationf("unknown fiscal day status %d", fact.Status)
	}
	if err := s.deviceMustExist(ctx, fact.DeviceID); err != nil {
		return err
	}

	day := &FiscalDay{
		DeviceID:            fact.DeviceID,
		FiscalDayNo:         fact.FiscalDayNo,
		Status:              fact.Status,
		OpenedAt:            fact.OpenedAt,
		ClosedAt:            fact.ClosedAt,
		LastReceiptGlobalNo: fact.LastReceiptGlobalNo,
	}
	if err := s.store.UpsertFiscalDay(ctx, day); err != nil {
		return fmt.Errorf("failed to record fiscal day: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"device_id":     fact.DeviceID,
		"fiscal_day_no": fact.FiscalDayNo,
		"status":        fact.Status,
	}).Debug("Fiscal day recorded")
	return nil
}

// RecordReceipt stores one receipt. Redelivery of the same (device,
// receipt) pair is treated as an idempotent no-op.
func (s *IngestService) RecordReceipt(ctx context.Context, fact ReceiptFact) error {
	switch fact.ValidationColor {
	case "", ValidationColorGrey, ValidationColorYellow, ValidationColorRed:
	default:
		return validationf("unknown validation color %q", fact.ValidationColor)
	}
	if err := s.deviceMustExist(ctx, fact.DeviceID); err != nil {
		return err
	}

	receipt := &Receipt{
		ReceiptID:       fact.ReceiptID,
		DeviceID:        fact.DeviceID,
		ReceiptType:     fact.ReceiptType,
		Currency:        fact.Currency,
		InvoiceNo:       fact.InvoiceNo,
		ReceiptDate:     fact.ReceiptDate,
		Total:           fact.Total,
		ValidationColor: fact.ValidationColor,
		ServerDate:      fact.ServerDate,
	}
	if err := s.store.CreateReceipt(ctx, receipt); err != nil {
		if IsUniqueViolation(err) {
			s.logger.WithFields(logrus.Fields{
				"device_id":  fact.DeviceID,
				"receipt_id": fact.ReceiptID,
			}).Debug("Duplicate receipt delivery ignored")
			return nil
		}
		return fmt.Errorf("failed to record receipt: %w", err)
	}
	return nil
}

// HandleMessage routes an MQTT payload by topic suffix. Wired as the
// subscriber callback in cmd/serve.go.
func (s *IngestService) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	switch {
	case strings.HasSuffix(topic, "/fiscal-day"):
		var fact FiscalDayFact
		if err := json.Unmarshal(payload, &fact); err != nil {
			return fmt.Errorf("malformed fiscal day payload: %w", err)
		}
		return s.RecordFiscalDay(ctx, fact)
	case strings.HasSuffix(topic, "/receipt"):
		var fact ReceiptFact
		if err := json.Unmarshal(payload, &fact); err != nil {
			return fmt.Errorf("malformed receipt payload: %w", err)
		}
		return s.RecordReceipt(ctx, fact)
	default:
		s.logger.WithField("topic", topic).Warn("Unhandled ingest topic")
		return nil
	}
}

func (s *IngestService) deviceMustExist(ctx context.Context, deviceID int64) error {
	if _, err := s.store.GetDeviceByDeviceID(ctx, deviceID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}
	return nil
}
