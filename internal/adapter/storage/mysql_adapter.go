package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

var ErrDuplicateCheckout = errors.New("checkout already exists")

const mysqlDuplicateEntry = 1062

type MySQLAdapter struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db, now: time.Now}
}

func (m *MySQLAdapter) Load(ctx context.Context, name string) ([]byte, error) {
	var payload []byte
	err := m.db.QueryRowContext(ctx, `
		SELECT payload FROM cart_slots WHERE owner = ?`, name,
	).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart slot: %w", err)
	}
	return payload, nil
}

func (m *MySQLAdapter) Save(ctx context.Context, name string, data []byte) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cart_slots (owner, payload, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)`,
		name, data, m.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert cart slot: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateCheckout(ctx context.Context, c domain.Checkout) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var couponCode sql.NullString
	var couponDiscount decimal.NullDecimal
	if c.Coupon != nil {
		couponCode = sql.NullString{String: c.Coupon.Code, Valid: true}
		couponDiscount = decimal.NewNullDecimal(c.Coupon.DiscountAmount)
	}

	p := c.Pricing
	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkouts (id, owner, request_id, status, subtotal, discount, taxable_base, tax,
			shipping, total, coupon_code, coupon_discount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Owner, c.RequestID, c.Status, p.Subtotal, p.Discount, p.TaxableBase, p.Tax,
		p.Shipping, p.Total, couponCode, couponDiscount, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("insert checkout: %w", err)
	}

	for i, it := range c.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checkout_lines (checkout_id, line_no, product_id, variant, name, image, category,
				generic_name, in_stock, unit_price, quantity, added_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, i, it.ProductID, it.Variant, it.Name, it.Image, it.Category,
			it.GenericName, it.InStock, it.UnitPrice, it.Quantity, it.AddedAt,
		)
		if err != nil {
			return fmt.Errorf("insert checkout line %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetCheckout(ctx context.Context, id string) (*domain.Checkout, error) {
	var (
		c              domain.Checkout
		couponCode     sql.NullString
		couponDiscount decimal.NullDecimal
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, owner, request_id, status, subtotal, discount, taxable_base, tax, shipping, total,
			coupon_code, coupon_discount, created_at, updated_at
		FROM checkouts WHERE id = ?`, id,
	).Scan(&c.ID, &c.Owner, &c.RequestID, &c.Status,
		&c.Pricing.Subtotal, &c.Pricing.Discount, &c.Pricing.TaxableBase, &c.Pricing.Tax,
		&c.Pricing.Shipping, &c.Pricing.Total, &couponCode, &couponDiscount, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout: %w", err)
	}
	if couponCode.Valid {
		c.Coupon = &domain.CouponResult{Valid: true, Code: couponCode.String, DiscountAmount: couponDiscount.Decimal}
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, variant, name, image, category, generic_name, in_stock, unit_price, quantity, added_at
		FROM checkout_lines WHERE checkout_id = ? ORDER BY line_no`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query checkout lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.LineItem
		if err := rows.Scan(&it.ProductID, &it.Variant, &it.Name, &it.Image, &it.Category,
			&it.GenericName, &it.InStock, &it.UnitPrice, &it.Quantity, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("scan checkout line: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkout lines: %w", err)
	}

	return &c, nil
}
