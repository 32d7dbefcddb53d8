package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/pharmacy?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := Migrate(dsn, zap.NewNop()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	return db
}

func testCheckout() domain.Checkout {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Checkout{
		ID:        uuid.NewString(),
		Owner:     "test-user",
		RequestID: "req-" + uuid.NewString(),
		Items: []domain.LineItem{
			{ProductID: "p1", Variant: "tab", Name: "Paracetamol", UnitPrice: decimal.RequireFromString("4.25"), Quantity: 2, InStock: true, AddedAt: now},
			{ProductID: "p2", Variant: "ml", Name: "Cough syrup", UnitPrice: decimal.RequireFromString("12.5"), Quantity: 1, InStock: true, AddedAt: now},
		},
		Pricing: domain.PricingBreakdown{
			Subtotal:    decimal.RequireFromString("21.00"),
			Discount:    decimal.RequireFromString("5.00"),
			TaxableBase: decimal.RequireFromString("16.00"),
			Tax:         decimal.RequireFromString("1.28"),
			Shipping:    decimal.RequireFromString("5.99"),
			Total:       decimal.RequireFromString("23.27"),
		},
		Coupon:    &domain.CouponResult{Valid: true, Code: "WELCOME5", DiscountAmount: decimal.NewFromInt(5)},
		Status:    domain.CheckoutStatusConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMySQLSlot_Upsert(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	db.ExecContext(ctx, `DELETE FROM cart_slots WHERE owner = 'slot-test-user'`)

	data, err := adapter.Load(ctx, "slot-test-user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil for missing slot, got %q", data)
	}

	for _, payload := range [][]byte{[]byte(`[{"productId":"p1"}]`), []byte(`[]`)} {
		if err := adapter.Save(ctx, "slot-test-user", payload); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		data, err = adapter.Load(ctx, "slot-test-user")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !bytes.Equal(data, payload) {
			t.Errorf("expected %q, got %q", payload, data)
		}
	}

	var count int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cart_slots WHERE owner = 'slot-test-user'`).Scan(&count)
	if count != 1 {
		t.Errorf("expected one slot row, got %d", count)
	}
}

func TestCreateCheckout_RoundTrip(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	checkout := testCheckout()

	if err := adapter.CreateCheckout(ctx, checkout); err != nil {
		t.Fatalf("CreateCheckout failed: %v", err)
	}
	defer db.ExecContext(ctx, `DELETE FROM checkouts WHERE id = ?`, checkout.ID)

	got, err := adapter.GetCheckout(ctx, checkout.ID)
	if err != nil {
		t.Fatalf("GetCheckout failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected checkout, got nil")
	}
	if got.Status != domain.CheckoutStatusConfirmed {
		t.Errorf("expected status confirmed, got %s", got.Status)
	}
	if !got.Pricing.Total.Equal(checkout.Pricing.Total) {
		t.Errorf("expected total %s, got %s", checkout.Pricing.Total, got.Pricing.Total)
	}
	if got.Coupon == nil || got.Coupon.Code != "WELCOME5" {
		t.Errorf("expected coupon WELCOME5, got %+v", got.Coupon)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got.Items))
	}
	if got.Items[0].ProductID != "p1" || got.Items[1].ProductID != "p2" {
		t.Errorf("lines out of order: %s, %s", got.Items[0].ProductID, got.Items[1].ProductID)
	}
	if !got.Items[0].UnitPrice.Equal(decimal.RequireFromString("4.25")) {
		t.Errorf("expected unit price 4.25, got %s", got.Items[0].UnitPrice)
	}
}

func TestCreateCheckout_Duplicate(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	checkout := testCheckout()

	if err := adapter.CreateCheckout(ctx, checkout); err != nil {
		t.Fatalf("CreateCheckout failed: %v", err)
	}
	defer db.ExecContext(ctx, `DELETE FROM checkouts WHERE id = ?`, checkout.ID)

	err := adapter.CreateCheckout(ctx, checkout)
	if !errors.Is(err, ErrDuplicateCheckout) {
		t.Errorf("expected ErrDuplicateCheckout, got: %v", err)
	}
}

func TestGetCheckout_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	c, err := adapter.GetCheckout(ctx, "nonexistent-checkout")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Error("expected nil for nonexistent checkout")
	}
}
