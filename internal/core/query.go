package core

import (
	"context"
	"time"

	"example.com/fdms/services/admin/config"
)

// QueryService is the read-only, cross-tenant gateway. Every list accepts
// offset/limit, returns the total matching the filter regardless of the
// page window, and never errors on an empty result. Read-committed store
// isolation is assumed; a row inserted between two page reads may appear
// once, twice, or not at all, and that race is accepted.
type QueryService struct {
	store DataStore
	cfg   config.GatewayConfig
}

func NewQueryService(store DataStore, cfg config.GatewayConfig) *QueryService {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.DefaultTimePageSize <= 0 {
		cfg.DefaultTimePageSize = 50
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 200
	}
	return &QueryService{store: store, cfg: cfg}
}

func (s *QueryService) clamp(p Page, fallback int) Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = fallback
	}
	if p.Limit > s.cfg.MaxPageSize {
		p.Limit = s.cfg.MaxPageSize
	}
	return p
}

func (s *QueryService) ListTaxpayers(ctx context.Context, f TaxpayerFilter) ([]*Taxpayer, int64, error) {
	f.Page = s.clamp(f.Page, s.cfg.DefaultPageSize)
	return s.store.ListTaxpayers(ctx, f)
}

func (s *QueryService) ListDevices(ctx context.Context, f DeviceFilter) ([]*Device, int64, error) {
	f.Page = s.clamp(f.Page, s.cfg.DefaultPageSize)
	return s.store.ListDevices(ctx, f)
}

func (s *QueryService) ListFiscalDays(ctx context.Context, f FiscalDayFilter) ([]*FiscalDay, int64, error) {
	f.Page = s.clamp(f.Page, s.cfg.DefaultTimePageSize)
	return s.store.ListFiscalDays(ctx, f)
}

func (s *QueryService) ListReceipts(ctx context.Context, f ReceiptFilter) ([]*Receipt, int64, error) {
	f.Page = s.clamp(f.Page, s.cfg.DefaultTimePageSize)
	return s.store.ListReceipts(ctx, f)
}

func (s *QueryService) ListAuditLogs(ctx context.Context, f AuditFilter) ([]*AuditLog, int64, error) {
	f.Page = s.clamp(f.Page, s.cfg.DefaultTimePageSize)
	return s.store.ListAuditLogs(ctx, f)
}

func (s *QueryService) GetStats(ctx context.Context) (*SystemStats, error) {
	return s.store.GetStats(ctx, time.Now())
}
