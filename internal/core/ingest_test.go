package core

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestRecordFiscalDayUpsert(t *testing.T) {
	services, _ := newTestRegistry(t)
	ctx := context.Background()

	taxpayer := onboardTestTaxpayer(t, services, "1000000001")
	provisionTestDevice(t, services, taxpayer.ID, 5001)

	opened := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	err := services.Ingest.RecordFiscalDay(ctx, FiscalDayFact{
		DeviceID:    5001,
		FiscalDayNo: 1,
		Status:      FiscalDayOpen,
		OpenedAt:    opened,
	})
	if err != nil {
		t.Fatalf("record open day: %v", err)
	}

	closed := opened.Add(10 * time.Hour)
	err = services.Ingest.RecordFiscalDay(ctx, FiscalDayFact{
		DeviceID:            5001,
		FiscalDayNo:         1,
		Status:              FiscalDayClosed,
		OpenedAt:            opened,
		ClosedAt:            &closed,
		LastReceiptGlobalNo: 42,
	})
	if err != nil {
		t.Fatalf("record closed day: %v", err)
	}

	// Both snapshots converge on a single row holding the latest state.
	rows, total, err := services.Query.ListFiscalDays(ctx, FiscalDayFilter{DeviceID: 5001})
	if err != nil {
		t.Fatalf("list fiscal days: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("expected one fiscal day row, got total=%d rows=%d", total, len(rows))
	}
	day := rows[0]
	if day.Status != FiscalDayClosed {
		t.Fatalf("expected closed status, got %d", day.Status)
	}
	if day.ClosedAt == nil || !day.ClosedAt.Equal(closed) {
		t.Fatalf("closed timestamp not updated: %v", day.ClosedAt)
	}
	if day.LastReceiptGlobalNo != 42 {
		t.Fatalf("expected last global no 42, got %d", day.LastReceiptGlobalNo)
	}
}

func TestRecordFiscalDayValidation(t *testing.T) {
	services, _ := newTestRegistry(t)
	ctx := context.Background()

	taxpayer := onboardTestTaxpayer(t, services, "1000000001")
	provisionTestDevice(t, services, taxpayer.ID, 5001)

	err := services.Ingest.RecordFiscalDay(ctx, FiscalDayFact{DeviceID: 5001, FiscalDayNo: 1, Status: 9})
	if !IsCode(err, CodeValidation) {
		t.Fatalf("expected VALIDATION for unknown status, got %v", err)
	}

	err = services.Ingest.RecordFiscalDay(ctx, FiscalDayFact{DeviceID: 999, FiscalDayNo: 1, Status: FiscalDayOpen})
	if !IsCode(err, CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown device, got %v", err)
	}
}

func TestRecordReceiptDuplicateIsIdempotent(t *testing.T) {
	services, _ := newTestRegistry(t)
	ctx := context.Background()

	taxpayer := onboardTestTaxpayer(t, services, "1000000001")
	provisionTestDevice(t, services, taxpayer.ID, 5001)

	fact := ReceiptFact{
		ReceiptID:   7,
		DeviceID:    5001,
		Currency:    "USD",
		ReceiptDate: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Total:       19.99,
	}
	if err := services.Ingest.RecordReceipt(ctx, fact); err != nil {
		t.Fatalf("record receipt: %v", err)
	}
	// Redelivery of the same (device, receipt) pair is a no-op.
	if err := services.Ingest.RecordReceipt(ctx, fact); err != nil {
		t.Fatalf("duplicate delivery should succeed silently: %v", err)
	}

	_, total, err := services.Query.ListReceipts(ctx, ReceiptFilter{DeviceID: 5001})
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected a single receipt row, got %d", total)
	}
}

func TestRecordReceiptValidation(t *testing.T) {
	services, _ := newTestRegistry(t)
	ctx := context.Background()

	taxpayer := onboardTestTaxpayer(t, services, "1000000001")
	provisionTestDevice(t, services, taxpayer.ID, 5001)

	err := services.Ingest.RecordReceipt(ctx, ReceiptFact{
		ReceiptID: 1, DeviceID: 5001, ValidationColor: "Purple",
	})
	if !IsCode(err, CodeValidation) {
		t.Fatalf("expected VALIDATION for unknown color, got %v", err)
	}

	err = services.Ingest.RecordReceipt(ctx, ReceiptFact{ReceiptID: 1, DeviceID: 999})
	if !IsCode(err, CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown device, got %v", err)
	}
}

func TestHandleMessageRouting(t *testing.T) {
	services, _ := newTestRegistry(t)
	ctx := context.Background()

	taxpayer := onboardTestTaxpayer(t, services, "1000000001")
	provisionTestDevice(t, services, taxpayer.ID, 5001)

	dayPayload, _ := json.Marshal(FiscalDayFact{
		DeviceID:    5001,
		FiscalDayNo: 1,
		Status:      FiscalDayOpen,
		OpenedAt:    time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC),
	})
	if err := services.Ingest.HandleMessage(ctx, "fiscal/5001/fiscal-day", dayPayload); err != nil {
		t.Fatalf("handle fiscal day message: %v", err)
	}

	receiptPayload, _ := json.Marshal(ReceiptFact{
		ReceiptID:   1,
		DeviceID:    5001,
		ReceiptDate: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Total:       5,
	})
	if err := services.Ingest.HandleMessage(ctx, "fiscal/5001/receipt", receiptPayload); err != nil {
		t.Fatalf("handle receipt message: %v", err)
	}

	_, total, err := services.Query.ListFiscalDays(ctx, FiscalDayFilter{DeviceID: 5001})
	if err != nil || total != 1 {
		t.Fatalf("fiscal day not recorded: total=%d err=%v", total, err)
	}
	_, total, err = services.Query.ListReceipts(ctx, ReceiptFilter{DeviceID: 5001})
	if err != nil || total != 1 {
		t.Fatalf("receipt not recorded: total=%d err=%v", total, err)
	}

	// Unknown topics are logged and dropped, not errored, so the broker
	// does not redeliver them forever.
	if err := services.Ingest.HandleMessage(ctx, "fiscal/5001/unknown", []byte("{}")); err != nil {
		t.Fatalf("unknown topic should be ignored: %v", err)
	}

	if err := services.Ingest.HandleMessage(ctx, "fiscal/5001/receipt", []byte("not-json")); err == nil {
		t.Fatal("malformed payload should error")
	}
}
