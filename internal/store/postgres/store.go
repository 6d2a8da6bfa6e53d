// Package postgres implements the host order collaborators on PostgreSQL.
// MarkAsPaid is a conditional update so concurrent callbacks for one order
// transition it at most once.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/yourorg/checkout-gateway/internal/order"
)

//go:embed schema.sql
var schemaSQL string

const orderKeyGroup = "Order"

const selectOrder = `SELECT id, order_guid::text, custom_order_number, order_total::text, created_on_utc,
	payment_status, payment_method_system_name, authorization_transaction_id
	FROM orders`

// Store implements order.Store, order.Processing and order.Attributes.
type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

// New returns a store using pool.
func New(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("postgres: pool cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{log: log, pool: pool}
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Insert stores a new order and returns it with the generated fields filled in.
func (s *Store) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	if o.OrderGUID == uuid.Nil {
		o.OrderGUID = uuid.New()
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = order.PaymentStatusPending
	}
	if o.CreatedOnUTC.IsZero() {
		o.CreatedOnUTC = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, `INSERT INTO orders
		(order_guid, custom_order_number, order_total, created_on_utc, payment_status, payment_method_system_name, authorization_transaction_id)
		VALUES ($1::uuid, $2, $3::numeric, $4, $5, $6, $7)
		RETURNING id`,
		o.OrderGUID.String(), o.CustomOrderNumber, o.OrderTotal.String(), o.CreatedOnUTC,
		string(o.PaymentStatus), o.PaymentMethodSystemName, o.AuthorizationTransactionID,
	).Scan(&o.ID)
	if err != nil {
		return order.Order{}, fmt.Errorf("postgres: insert order: %w", err)
	}
	return o, nil
}

// GetByGUID implements order.Store.
func (s *Store) GetByGUID(ctx context.Context, guid uuid.UUID) (*order.Order, error) {
	row := s.pool.QueryRow(ctx, selectOrder+` WHERE order_guid = $1::uuid`, guid.String())
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order %s: %w", guid, err)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o      order.Order
		guid   string
		total  string
		status string
	)
	if err := row.Scan(&o.ID, &guid, &o.CustomOrderNumber, &total, &o.CreatedOnUTC,
		&status, &o.PaymentMethodSystemName, &o.AuthorizationTransactionID); err != nil {
		return nil, err
	}
	var err error
	if o.OrderGUID, err = uuid.Parse(guid); err != nil {
		return nil, fmt.Errorf("order_guid: %w", err)
	}
	if o.OrderTotal, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("order_total: %w", err)
	}
	o.PaymentStatus = order.PaymentStatus(status)
	o.CreatedOnUTC = o.CreatedOnUTC.UTC()
	return &o, nil
}

// Update implements order.Store. Only fields the payment plugins own are
// written; the payment status moves through MarkAsPaid.
func (s *Store) Update(ctx context.Context, o *order.Order) error {
	ct, err := s.pool.Exec(ctx, `UPDATE orders
		SET authorization_transaction_id = $2, payment_method_system_name = $3
		WHERE id = $1`,
		o.ID, o.AuthorizationTransactionID, o.PaymentMethodSystemName)
	if err != nil {
		return fmt.Errorf("postgres: update order %d: %w", o.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update order %d: %w", o.ID, order.ErrNotFound)
	}
	return nil
}

// InsertNote implements order.Store.
func (s *Store) InsertNote(ctx context.Context, n order.Note) error {
	if n.CreatedOnUTC.IsZero() {
		n.CreatedOnUTC = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO order_notes (order_id, note, display_to_customer, created_on_utc)
		VALUES ($1, $2, $3, $4)`, n.OrderID, n.Note, n.DisplayToCustomer, n.CreatedOnUTC)
	if err != nil {
		return fmt.Errorf("postgres: insert note for order %d: %w", n.OrderID, err)
	}
	return nil
}

// Notes returns the notes of an order in insertion order.
func (s *Store) Notes(ctx context.Context, orderID int64) ([]order.Note, error) {
	rows, err := s.pool.Query(ctx, `SELECT order_id, note, display_to_customer, created_on_utc
		FROM order_notes WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notes for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var notes []order.Note
	for rows.Next() {
		var n order.Note
		if err := rows.Scan(&n.OrderID, &n.Note, &n.DisplayToCustomer, &n.CreatedOnUTC); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// MarkAsPaid implements order.Processing.
func (s *Store) MarkAsPaid(ctx context.Context, o *order.Order) error {
	ct, err := s.pool.Exec(ctx, `UPDATE orders
		SET payment_status = $2, paid_date_utc = now()
		WHERE id = $1 AND payment_status <> $2`, o.ID, string(order.PaymentStatusPaid))
	if err != nil {
		return fmt.Errorf("postgres: mark order %d paid: %w", o.ID, err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: mark order %d paid: %w", o.ID, err)
		}
		if !exists {
			return fmt.Errorf("postgres: mark order %d paid: %w", o.ID, order.ErrNotFound)
		}
		s.log.Warn("order already paid", slog.Int64("order_id", o.ID))
		return order.ErrAlreadyPaid
	}
	o.PaymentStatus = order.PaymentStatusPaid
	return nil
}

// GetAttribute implements order.Attributes. A missing attribute is "".
func (s *Store) GetAttribute(ctx context.Context, orderID int64, key string) (string, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM generic_attributes
		WHERE entity_id = $1 AND key_group = $2 AND key = $3`, orderID, orderKeyGroup, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: get attribute %s of order %d: %w", key, orderID, err)
	}
	return v, nil
}

// SaveAttribute implements order.Attributes. An empty value deletes.
func (s *Store) SaveAttribute(ctx context.Context, orderID int64, key, value string) error {
	var err error
	if value == "" {
		_, err = s.pool.Exec(ctx, `DELETE FROM generic_attributes
			WHERE entity_id = $1 AND key_group = $2 AND key = $3`, orderID, orderKeyGroup, key)
	} else {
		_, err = s.pool.Exec(ctx, `INSERT INTO generic_attributes (entity_id, key_group, key, value)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (entity_id, key_group, key) DO UPDATE SET value = EXCLUDED.value`,
			orderID, orderKeyGroup, key, value)
	}
	if err != nil {
		return fmt.Errorf("postgres: save attribute %s of order %d: %w", key, orderID, err)
	}
	return nil
}
