package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/UsmanShaikh24/pharmalink/internal/catalog"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrVersionConflict means a concurrent update won the race; the caller
	// must re-read the order before retrying.
	ErrVersionConflict = errors.New("order was modified concurrently")
)

type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// Update persists status, payment status and delivery time, guarded by
	// the order's version. ErrVersionConflict is returned when the stored
	// version no longer matches.
	Update(ctx context.Context, order *Order) error
	AppendTracking(ctx context.Context, entry *TrackingEntry) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	ListByPharmacy(ctx context.Context, pharmacyID uuid.UUID) ([]Order, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, order *Order) (err error) {
	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Stringer("order_id", order.ID).Msg("Panic recovered during Create, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", order.ID).Msg("Failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			log.Warn().Err(err).Stringer("order_id", order.ID).Msg("Transaction for Create failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", order.ID).Msg("Failed to rollback transaction")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				log.Error().Err(commitErr).Stringer("order_id", order.ID).Msg("Failed to commit transaction")
				err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
			}
		}
	}()

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	queryOrder := `
		INSERT INTO pharmalink.orders (
			id, customer_id, pharmacy_id, subtotal, tax, delivery_fee, total_amount,
			delivery_type, address_line1, address_line2, address_city, address_postal_code,
			address_latitude, address_longitude, status, payment_method, payment_status,
			estimated_delivery_time, version, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`
	_, err = tx.Exec(ctx, queryOrder,
		order.ID,
		order.CustomerID,
		order.PharmacyID,
		order.Subtotal,
		order.Tax,
		order.DeliveryFee,
		order.TotalAmount,
		string(order.DeliveryType),
		order.DeliveryAddress.Line1,
		order.DeliveryAddress.Line2,
		order.DeliveryAddress.City,
		order.DeliveryAddress.PostalCode,
		order.DeliveryAddress.Latitude,
		order.DeliveryAddress.Longitude,
		string(order.Status),
		string(order.PaymentMethod),
		string(order.PaymentStatus),
		order.EstimatedDeliveryTime,
		order.Version,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryLine := `
		INSERT INTO pharmalink.order_lines (id, order_id, position, medicine_id, quantity, unit_price, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	for i := range order.Lines {
		line := &order.Lines[i]

		lineID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order line ID: %w", genErr)
		}
		line.ID = lineID
		line.OrderID = order.ID
		line.Position = i
		line.CreatedAt = now

		_, err = tx.Exec(ctx, queryLine,
			line.ID,
			line.OrderID,
			line.Position,
			line.MedicineID,
			line.Quantity,
			line.UnitPrice,
			line.CreatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				// Medicine row disappeared between resolution and insert.
				err = fmt.Errorf("repository: order line for medicine %s: %w", line.MedicineID, catalog.ErrMedicineNotFound)
				return err
			}
			return fmt.Errorf("repository: failed to insert order line for order %s: %w", order.ID, err)
		}
	}

	return nil
}

const orderColumns = `
	id, customer_id, pharmacy_id, subtotal, tax, delivery_fee, total_amount,
	delivery_type, address_line1, address_line2, address_city, address_postal_code,
	address_latitude, address_longitude, status, payment_method, payment_status,
	estimated_delivery_time, actual_delivery_time, version, created_at, updated_at
`

func scanOrder(row pgx.Row, order *Order) error {
	return row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.PharmacyID,
		&order.Subtotal,
		&order.Tax,
		&order.DeliveryFee,
		&order.TotalAmount,
		&order.DeliveryType,
		&order.DeliveryAddress.Line1,
		&order.DeliveryAddress.Line2,
		&order.DeliveryAddress.City,
		&order.DeliveryAddress.PostalCode,
		&order.DeliveryAddress.Latitude,
		&order.DeliveryAddress.Longitude,
		&order.Status,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.EstimatedDeliveryTime,
		&order.ActualDeliveryTime,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM pharmalink.orders WHERE id = $1`

	var order Order
	if err := scanOrder(r.db.QueryRow(ctx, query, id), &order); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	lines, err := r.loadLines(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	tracking, err := r.loadTracking(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Tracking = tracking

	return &order, nil
}

func (r *postgresRepository) loadLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	query := `
		SELECT id, order_id, position, medicine_id, quantity, unit_price, created_at
		FROM pharmalink.order_lines
		WHERE order_id = $1
		ORDER BY position
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order lines for order %s: %w", orderID, err)
	}
	defer rows.Close()

	lines := make([]OrderLine, 0)
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.Position, &line.MedicineID, &line.Quantity, &line.UnitPrice, &line.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order line for order %s: %w", orderID, err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order lines for order %s: %w", orderID, err)
	}

	return lines, nil
}

func (r *postgresRepository) loadTracking(ctx context.Context, orderID uuid.UUID) ([]TrackingEntry, error) {
	query := `
		SELECT id, order_id, status, latitude, longitude, recorded_at
		FROM pharmalink.order_tracking
		WHERE order_id = $1
		ORDER BY seq
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query tracking for order %s: %w", orderID, err)
	}
	defer rows.Close()

	entries := make([]TrackingEntry, 0)
	for rows.Next() {
		var e TrackingEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.Latitude, &e.Longitude, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("repository: failed to scan tracking entry for order %s: %w", orderID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating tracking for order %s: %w", orderID, err)
	}

	return entries, nil
}

func (r *postgresRepository) Update(ctx context.Context, order *Order) error {
	query := `
		UPDATE pharmalink.orders
		SET status = $1, payment_status = $2, actual_delivery_time = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6
	`

	updatedAt := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx, query,
		string(order.Status),
		string(order.PaymentStatus),
		order.ActualDeliveryTime,
		updatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", order.ID).Str("status", string(order.Status)).Msg("repository: failed to update order")
		return fmt.Errorf("repository: failed to update order %s: %w", order.ID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if checkErr := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pharmalink.orders WHERE id = $1)`, order.ID).Scan(&exists); checkErr != nil {
			return fmt.Errorf("repository: failed to check order %s after update conflict: %w", order.ID, checkErr)
		}
		if !exists {
			return ErrOrderNotFound
		}
		log.Warn().Stringer("order_id", order.ID).Int("expected_version", order.Version).Msg("repository: order version conflict")
		return ErrVersionConflict
	}

	order.Version++
	order.UpdatedAt = updatedAt
	return nil
}

func (r *postgresRepository) AppendTracking(ctx context.Context, entry *TrackingEntry) error {
	query := `
		INSERT INTO pharmalink.order_tracking (id, order_id, status, latitude, longitude, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.OrderID,
		entry.Status,
		entry.Latitude,
		entry.Longitude,
		entry.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrOrderNotFound
		}
		return fmt.Errorf("repository: failed to insert tracking entry for order %s: %w", entry.OrderID, err)
	}

	return nil
}

func (r *postgresRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	return r.list(ctx, "customer_id", customerID)
}

func (r *postgresRepository) ListByPharmacy(ctx context.Context, pharmacyID uuid.UUID) ([]Order, error) {
	return r.list(ctx, "pharmacy_id", pharmacyID)
}

func (r *postgresRepository) list(ctx context.Context, column string, id uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM pharmalink.orders WHERE ` + column + ` = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders by %s %s: %w", column, id, err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var order Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order by %s %s: %w", column, id, err)
		}
		order.Lines = make([]OrderLine, 0)
		order.Tracking = make([]TrackingEntry, 0)
		ordersMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders by %s %s: %w", column, id, err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	linesQuery := `
		SELECT id, order_id, position, medicine_id, quantity, unit_price, created_at
		FROM pharmalink.order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`
	lineRows, err := r.db.Query(ctx, linesQuery, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order lines by %s %s: %w", column, id, err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line OrderLine
		if err := lineRows.Scan(&line.ID, &line.OrderID, &line.Position, &line.MedicineID, &line.Quantity, &line.UnitPrice, &line.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order line by %s %s: %w", column, id, err)
		}
		if order, ok := ordersMap[line.OrderID]; ok {
			order.Lines = append(order.Lines, line)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order lines by %s %s: %w", column, id, err)
	}

	result := make([]Order, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		if order, ok := ordersMap[orderID]; ok {
			result = append(result, *order)
		}
	}

	return result, nil
}
