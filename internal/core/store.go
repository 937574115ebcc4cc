package core

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Page bounds a list query. Limits are clamped by the query gateway before
// they reach the store.
type Page struct {
	Offset int
	Limit  int
}

// TaxpayerFilter narrows taxpayer lists. Search matches name or TIN.
type TaxpayerFilter struct {
	Search string
	Page   Page
}

// DeviceFilter narrows device lists.
type DeviceFilter struct {
	TaxpayerID uint
	Page       Page
}

// FiscalDayFilter narrows fiscal day lists.
type FiscalDayFilter struct {
	TaxpayerID uint
	DeviceID   int64
	Page       Page
}

// ReceiptFilter narrows receipt lists.
type ReceiptFilter struct {
	TaxpayerID uint
	DeviceID   int64
	From       *time.Time
	To         *time.Time
	Page       Page
}

// AuditFilter narrows audit log lists.
type AuditFilter struct {
	EntityType string
	EntityID   int64
	Page       Page
}

// DataStore defines the interface for data access operations.
type DataStore interface {
	// Taxpayer operations
	CreateTaxpayer(ctx context.Context, t *Taxpayer) error
	UpdateTaxpayer(ctx context.Context, t *Taxpayer) error
	GetTaxpayer(ctx context.Context, id uint) (*Taxpayer, error)
	ListTaxpayers(ctx context.Context, f TaxpayerFilter) ([]*Taxpayer, int64, error)

	// Device operations
	CreateDevice(ctx context.Context, d *Device) error
	UpdateDevice(ctx context.Context, d *Device) error
	GetDeviceByDeviceID(ctx context.Context, deviceID int64) (*Device, error)
	ListDevices(ctx context.Context, f DeviceFilter) ([]*Device, int64, error)

	// Fiscal facts recorded by the ingest bridge
	UpsertFiscalDay(ctx context.Context, fd *FiscalDay) error
	ListFiscalDays(ctx context.Context, f FiscalDayFilter) ([]*FiscalDay, int64, error)
	CreateReceipt(ctx context.Context, r *Receipt) error
	ListReceipts(ctx context.Context, f ReceiptFilter) ([]*Receipt, int64, error)

	// Audit trail (append-only; no update or delete methods exist)
	AppendAuditLog(ctx context.Context, entry *AuditLog) error
	ListAuditLogs(ctx context.Context, f AuditFilter) ([]*AuditLog, int64, error)
	CountAuditLogs(ctx context.Context) (int64, error)

	// Admin accounts and sessions
	CreateAdminUser(ctx context.Context, u *AdminUser) error
	UpdateAdminUser(ctx context.Context, u *AdminUser) error
	GetAdminUserByUsername(ctx context.Context, username string) (*AdminUser, error)
	CountAdminUsers(ctx context.Context) (int64, error)
	CreateSession(ctx context.Context, s *AdminSession) error
	GetSessionByToken(ctx context.Context, token string) (*AdminSession, error)
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) error

	// Aggregates
	GetStats(ctx context.Context, now time.Time) (*SystemStats, error)

	// Transaction support
	WithTransaction(ctx context.Context, fn func(context.Context, DataStore) error) error
}

type dataStore struct {
	db *gorm.DB
}

// NewDataStore wraps a gorm connection in the DataStore interface.
func NewDataStore(db *gorm.DB) DataStore {
	return &dataStore{db: db}
}

// Models returns every model the store owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Taxpayer{},
		&Device{},
		&FiscalDay{},
		&Receipt{},
		&AuditLog{},
		&AdminUser{},
		&AdminSession{},
	}
}

func (s *dataStore) WithTransaction(ctx context.Context, fn func(context.Context, DataStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewDataStore(tx))
	})
}

// IsUniqueViolation reports whether err is a uniqueness-constraint failure
// from the underlying store. Postgres and sqlite phrase it differently.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if err == gorm.ErrDuplicatedKey {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// --- Taxpayers ---

func (s *dataStore) CreateTaxpayer(ctx context.Context, t *Taxpayer) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *dataStore) UpdateTaxpayer(ctx context.Context, t *Taxpayer) error {
	return s.db.WithContext(ctx).Save(t).Error
}

func (s *dataStore) GetTaxpayer(ctx context.Context, id uint) (*Taxpayer, error) {
	var t Taxpayer
	return &t, s.db.WithContext(ctx).First(&t, id).Error
}

func (s *dataStore) ListTaxpayers(ctx context.Context, f TaxpayerFilter) ([]*Taxpayer, int64, error) {
	q := s.db.WithContext(ctx).Model(&Taxpayer{})
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR tin LIKE ?", like, "%"+f.Search+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	rows := make([]*Taxpayer, 0)
	err := q.Order("name ASC, id ASC").
		Offset(f.Page.Offset).Limit(f.Page.Limit).
		Find(&rows).Error
	return rows, total, err
}

// --- Devices ---

func (s *dataStore) CreateDevice(ctx context.Context, d *Device) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *dataStore) UpdateDevice(ctx context.Context, d *Device) error {
	return s.db.WithContext(ctx).Save(d).Error
}

func (s *dataStore) GetDeviceByDeviceID(ctx context.Context, deviceID int64) (*Device, error) {
	var d Device
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&d).Error
	return &d, err
}

func (s *dataStore) ListDevices(ctx context.Context, f DeviceFilter) ([]*Device, int64, error) {
	q := s.db.WithContext(ctx).Model(&Device{})
	if f.TaxpayerID > 0 {
		q = q.Where("taxpayer_id = ?", f.TaxpayerID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	rows := make([]*Device, 0)
	err := q.Order("device_id ASC").
		Offset(f.Page.Offset).Limit(f.Page.Limit).
		Find(&rows).Error
	return rows, total, err
}

// deviceIDsForTaxpayer builds a subquery of operator device ids owned by a
// taxpayer, for scoping fiscal day and receipt views.
func (s *dataStore) deviceIDsForTaxpayer(taxpayerID uint) *gorm.DB {
	return s.db.Model(&Device{}).Select("device_id").Where("taxpayer_id = ?", taxpayerID)
}

// --- Fiscal days ---

func (s *dataStore) UpsertFiscalDay(ctx context.Context, fd *FiscalDay) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}, {Name: "fiscal_day_no"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "closed_at", "last_receipt_global_no", "updated_at",
		}),
	}).Create(fd).Error
}

func (s *dataStore) ListFiscalDays(ctx context.Context, f FiscalDayFilter) ([]*FiscalDay, int64, error) {
	q := s.db.WithContext(ctx).Model(&FiscalDay{})
	if f.DeviceID > 0 {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if f.TaxpayerID > 0 {
		q = q.Where("device_id IN (?)", s.deviceIDsForTaxpayer(f.TaxpayerID))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	rows := make([]*FiscalDay, 0)
	err := q.Order("opened_at DESC, id DESC").
		Offset(f.Page.Offset).Limit(f.Page.Limit).
		Find(&rows).Error
	return rows, total, err
}

// --- Receipts ---

func (s *dataStore) CreateReceipt(ctx context.Context, r *Receipt) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *dataStore) ListReceipts(ctx context.Context, f ReceiptFilter) ([]*Receipt, int64, error) {
	q := s.db.WithContext(ctx).Model(&Receipt{})
	if f.DeviceID > 0 {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if f.TaxpayerID > 0 {
		q = q.Where("device_id IN (?)", s.deviceIDsForTaxpayer(f.TaxpayerID))
	}
	if f.From != nil {
		q = q.Where("receipt_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("receipt_date <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	rows := make([]*Receipt, 0)
	err := q.Order("receipt_date DESC, id DESC").
		Offset(f.Page.Offset).Limit(f.Page.Limit).
		Find(&rows).Error
	return rows, total, err
}

// --- Audit trail ---

func (s *dataStore) AppendAuditLog(ctx context.Context, entry *AuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *dataStore) ListAuditLogs(ctx context.Context, f AuditFilter) ([]*AuditLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&AuditLog{})
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	rows := make([]*AuditLog, 0)
	err := q.Order("created_at DESC, id DESC").
		Offset(f.Page.Offset).Limit(f.Page.Limit).
		Find(&rows).Error
	return rows, total, err
}

func (s *dataStore) CountAuditLogs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&AuditLog{}).Count(&count).Error
	return count, err
}

// --- Admin accounts and sessions ---

func (s *dataStore) CreateAdminUser(ctx context.Context, u *AdminUser) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *dataStore) UpdateAdminUser(ctx context.Context, u *AdminUser) error {
	return s.db.WithContext(ctx).Save(u).Error
}

func (s *dataStore) GetAdminUserByUsername(ctx context.Context, username string) (*AdminUser, error) {
	var u AdminUser
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	return &u, err
}

func (s *dataStore) CountAdminUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&AdminUser{}).Count(&count).Error
	return count, err
}

func (s *dataStore) CreateSession(ctx context.Context, sess *AdminSession) error {
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *dataStore) GetSessionByToken(ctx context.Context, token string) (*AdminSession, error) {
	var sess AdminSession
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&sess).Error
	return &sess, err
}

func (s *dataStore) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) error {
	return s.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&AdminSession{}).Error
}

// --- Aggregates ---

func (s *dataStore) GetStats(ctx context.Context, now time.Time) (*SystemStats, error) {
	db := s.db.WithContext(ctx)
	stats := &SystemStats{}

	if err := db.Model(&Taxpayer{}).Count(&stats.TotalCompanies).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Taxpayer{}).Where("status = ?", TaxpayerStatusActive).
		Count(&stats.ActiveCompanies).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Device{}).Count(&stats.TotalDevices).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Device{}).Where("status = ?", DeviceStatusActive).
		Count(&stats.ActiveDevices).Error; err != nil {
		return nil, err
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := db.Model(&Receipt{}).Where("receipt_date >= ?", startOfDay).
		Count(&stats.TodayReceipts).Error; err != nil {
		return nil, err
	}
	var revenue struct{ Total float64 }
	if err := db.Model(&Receipt{}).Where("receipt_date >= ?", startOfDay).
		Select("COALESCE(SUM(total), 0) AS total").Scan(&revenue).Error; err != nil {
		return nil, err
	}
	stats.TodayRevenue = revenue.Total
	if err := db.Model(&Receipt{}).
		Where("receipt_date >= ? AND validation_color <> ''", startOfDay).
		Count(&stats.ValidationErrors).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&FiscalDay{}).Where("status = ?", FiscalDayOpen).
		Count(&stats.OpenFiscalDays).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
