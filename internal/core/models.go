package core

import (
	"time"
)

// Taxpayer represents a registered company onboarded into the fiscal network.
// The TIN is the business key: unique and immutable once set. Taxpayers are
// never physically deleted; the status toggle is the only lifecycle.
type Taxpayer struct {
	ID                    uint      `json:"id" gorm:"primaryKey"`
	TIN                   string    `json:"tin" gorm:"column:tin;size:10;uniqueIndex;not null"`
	Name                  string    `json:"name" gorm:"not null"`
	VATNumber             string    `json:"vat_number,omitempty"`
	Status                string    `json:"status" gorm:"index;not null"`
	DayMaxHrs             int       `json:"taxpayer_day_max_hrs" gorm:"default:24"`
	DayEndNotificationHrs int       `json:"taxpayer_day_end_notification_hrs" gorm:"default:2"`
	QRUrl                 string    `json:"qr_url"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Address describes the physical location of a device branch.
type Address struct {
	Province string `json:"province"`
	City     string `json:"city"`
	Street   string `json:"street"`
	HouseNo  string `json:"houseNo"`
}

// Contacts holds optional branch contact details.
type Contacts struct {
	PhoneNo string `json:"phoneNo,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Device represents a provisioned point-of-sale fiscal unit. DeviceID is
// chosen by the operator at provisioning time and is unique system-wide.
// The activation key is a write-once secret: it is stored for verification
// by the device registration protocol but never serialized on read paths.
type Device struct {
	ID                   uint      `json:"id" gorm:"primaryKey"`
	DeviceID             int64     `json:"device_id" gorm:"uniqueIndex;not null"`
	TaxpayerID           uint      `json:"taxpayer_id" gorm:"index;not null"`
	SerialNo             string    `json:"device_serial_no" gorm:"size:20;uniqueIndex;not null"`
	ModelName            string    `json:"device_model_name"`
	ModelVersion         string    `json:"device_model_version"`
	ActivationKey        string    `json:"-" gorm:"size:8;not null"`
	OperatingMode        int       `json:"operating_mode" gorm:"default:0"`
	Status               string    `json:"status" gorm:"index;not null"`
	BranchName           string    `json:"branch_name"`
	BranchAddress        Address   `json:"branch_address" gorm:"embedded;embeddedPrefix:branch_addr_"`
	BranchContacts       Contacts  `json:"branch_contacts" gorm:"embedded;embeddedPrefix:branch_contact_"`
	CertificateValidTill time.Time `json:"certificate_valid_till"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
	Taxpayer             Taxpayer  `json:"-" gorm:"foreignKey:TaxpayerID"`
}

// FiscalDay is one operating-day session of a device. Rows are produced by
// the device protocol and recorded through the ingest bridge; the control
// plane only reads them. DeviceID is the operator-facing device id.
type FiscalDay struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	DeviceID            int64      `json:"deviceID" gorm:"index:idx_fiscal_days_device_day,unique;not null"`
	FiscalDayNo         int        `json:"fiscalDayNo" gorm:"index:idx_fiscal_days_device_day,unique;not null"`
	Status              int        `json:"status" gorm:"index"`
	OpenedAt            time.Time  `json:"fiscalDayOpened"`
	ClosedAt            *time.Time `json:"fiscalDayClosed,omitempty"`
	LastReceiptGlobalNo int64      `json:"lastReceiptGlobalNo,omitempty"`
	CreatedAt           time.Time  `json:"-"`
	UpdatedAt           time.Time  `json:"-"`
}

// Receipt is one fiscal transaction, recorded by the ingest bridge and
// read-only from the control plane's perspective. ValidationColor is empty
// when no validation anomaly was detected.
type Receipt struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	ReceiptID       int64      `json:"receiptID" gorm:"index:idx_receipts_device_receipt,unique;not null"`
	DeviceID        int64      `json:"deviceID" gorm:"index:idx_receipts_device_receipt,unique;not null"`
	ReceiptType     int        `json:"receiptType"`
	Currency        string     `json:"receiptCurrency" gorm:"size:3"`
	InvoiceNo       string     `json:"invoiceNo"`
	ReceiptDate     time.Time  `json:"receiptDate" gorm:"index"`
	Total           float64    `json:"receiptTotal"`
	ValidationColor string     `json:"validationColor,omitempty" gorm:"index"`
	ServerDate      *time.Time `json:"serverDate,omitempty"`
	CreatedAt       time.Time  `json:"-"`
}

// AuditLog is an append-only record of a control-plane mutation. Entries
// reference entities by type and id without a foreign key so the trail
// survives independently of the entity it describes. No update or delete
// path exists for this table anywhere in the codebase.
type AuditLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	EntityType string    `json:"entityType" gorm:"index;not null"`
	EntityID   *int64    `json:"entityId,omitempty" gorm:"index"`
	Action     string    `json:"action" gorm:"not null"`
	DeviceID   *int64    `json:"deviceId,omitempty"`
	IPAddress  string    `json:"ipAddress"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"createdAt" gorm:"index"`
}

// AdminUser is an operator account for the control plane.
type AdminUser struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Role         string    `json:"role" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AdminSession is a bearer credential issued at login.
type AdminSession struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	Token     string    `json:"token" gorm:"uniqueIndex;not null"`
	Username  string    `json:"username" gorm:"not null"`
	Role      string    `json:"role" gorm:"not null"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"index;not null"`
	CreatedAt time.Time `json:"-"`
}

// SystemStats aggregates the dashboard counters. The counts share the
// gateway's read-committed snapshot semantics; they are not guaranteed to
// be mutually consistent under concurrent writes.
type SystemStats struct {
	TotalCompanies   int64   `json:"totalCompanies"`
	ActiveCompanies  int64   `json:"activeCompanies"`
	TotalDevices     int64   `json:"totalDevices"`
	ActiveDevices    int64   `json:"activeDevices"`
	TodayReceipts    int64   `json:"todayReceipts"`
	OpenFiscalDays   int64   `json:"openFiscalDays"`
	TodayRevenue     float64 `json:"todayRevenue"`
	ValidationErrors int64   `json:"validationErrors"`
}

// TableName overrides for GORM
func (Taxpayer) TableName() string     { return "taxpayers" }
func (Device) TableName() string       { return "devices" }
func (FiscalDay) TableName() string    { return "fiscal_days" }
func (Receipt) TableName() string      { return "receipts" }
func (AuditLog) TableName() string     { return "audit_logs" }
func (AdminUser) TableName() string    { return "admin_users" }
func (AdminSession) TableName() string { return "admin_sessions" }

// Constants for entity state machines and classifications
const (
	// Taxpayer statuses
	TaxpayerStatusActive   = "Active"
	TaxpayerStatusInactive = "Inactive"

	// Device statuses. Revoked is terminal.
	DeviceStatusActive  = "Active"
	DeviceStatusBlocked = "Blocked"
	DeviceStatusRevoked = "Revoked"

	// Operating modes
	OperatingModeOnline  = 0
	OperatingModeOffline = 1

	// Fiscal day statuses
	FiscalDayClosed      = 0
	FiscalDayOpen        = 1
	FiscalDayClosing     = 2
	FiscalDayCloseFailed = 3

	// Receipt types
	ReceiptTypeFiscalInvoice = 0
	ReceiptTypeCreditNote    = 1
	ReceiptTypeDebitNote     = 2

	// Validation colors
	ValidationColorGrey   = "Grey"
	ValidationColorYellow = "Yellow"
	ValidationColorRed    = "Red"

	// Audit entity types
	EntityTypeTaxpayer = "taxpayer"
	EntityTypeDevice   = "device"
	EntityTypeSession  = "session"

	// Audit actions
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
	ActionBlock      = "block"
	ActionRevoke     = "revoke"
	ActionSetMode    = "set_mode"
	ActionProvision  = "provision"
	ActionLogin      = "login"

	// Admin roles
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)
