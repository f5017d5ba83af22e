package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/netwatch-core/internal/infrastructure/database"
)

// Repository defines the persistence operations the Registry relies on.
// History is never persisted; implementations store identity, metadata,
// status and last check only.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// Update writes address, name and description.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// UpdateStatus writes status and last check together.
	// Returns ErrDeviceNotFound if the device does not exist.
	UpdateStatus(ctx context.Context, id string, status Status, lastCheck time.Time) error

	// Delete removes a device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on top of a database.Handle, so
// every query is serialised on the shared connection.
type SQLiteRepository struct {
	handle *database.Handle
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(handle *database.Handle) *SQLiteRepository {
	return &SQLiteRepository{handle: handle}
}

const selectDeviceColumns = `
	SELECT id, address, name, description, is_online, last_check, created_at, updated_at
	FROM devices`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	var d *Device
	err := r.handle.Do(ctx, func(ctx context.Context, db *database.DB) error {
		var scanErr error
		d, scanErr = scanDevice(db.QueryRowContext(ctx, selectDeviceColumns+" WHERE id = ?", id))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, storeError("querying device by id", err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := r.handle.Do(ctx, func(ctx context.Context, db *database.DB) error {
		rows, err := db.QueryContext(ctx, selectDeviceColumns+" ORDER BY name, id")
		if err != nil {
			return err
		}
		defer rows.Close()

		devices = devices[:0]
		for rows.Next() {
			d, err := scanDevice(rows)
			if err != nil {
				return fmt.Errorf("scanning device: %w", err)
			}
			devices = append(devices, *d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storeError("listing devices", err)
	}
	return devices, nil
}

// Create inserts a new device. CreatedAt and UpdatedAt are set on the
// passed device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO devices (id, address, name, description, is_online, last_check, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	err := r.handle.Do(ctx, func(ctx context.Context, db *database.DB) error {
		_, err := db.ExecContext(ctx, query,
			device.ID,
			device.Address,
			device.Name,
			device.Description,
			nullableStatus(device.Status),
			nullableTime(device.LastCheck),
			now.Format(time.RFC3339),
			now.Format(time.RFC3339),
		)
		return err
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return storeError("inserting device", err)
	}

	device.CreatedAt = now
	device.UpdatedAt = now
	return nil
}

// Update writes the editable metadata of an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET address = ?, name = ?, description = ?, updated_at = ?
		WHERE id = ?`

	err := r.exec(ctx, query,
		device.Address,
		device.Name,
		device.Description,
		now.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		return mapWriteError("updating device", err)
	}
	device.UpdatedAt = now
	return nil
}

// UpdateStatus writes the status and last check time as one statement.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status, lastCheck time.Time) error {
	query := `
		UPDATE devices
		SET is_online = ?, last_check = ?
		WHERE id = ?`

	err := r.exec(ctx, query,
		nullableStatus(status),
		lastCheck.UTC().Format(time.RFC3339Nano),
		id,
	)
	return mapWriteError("updating device status", err)
}

// Delete removes a device.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	err := r.exec(ctx, "DELETE FROM devices WHERE id = ?", id)
	return mapWriteError("deleting device", err)
}

// exec runs a write that must touch exactly one row. A write that matches
// nothing is reported as sql.ErrNoRows so the handle keeps its connection.
func (r *SQLiteRepository) exec(ctx context.Context, query string, args ...any) error {
	return r.handle.Do(ctx, func(ctx context.Context, db *database.DB) error {
		result, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var isOnline sql.NullInt64
	var lastCheck sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&d.ID,
		&d.Address,
		&d.Name,
		&d.Description,
		&isOnline,
		&lastCheck,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	switch {
	case !isOnline.Valid:
		d.Status = StatusUnknown
	case isOnline.Int64 != 0:
		d.Status = StatusOnline
	default:
		d.Status = StatusOffline
	}

	if lastCheck.Valid {
		if t, err := parseTimestamp(lastCheck.String); err == nil {
			d.LastCheck = &t
		}
	}
	d.CreatedAt, _ = parseTimestamp(createdAt) //nolint:errcheck // Written by this package
	d.UpdatedAt, _ = parseTimestamp(updatedAt) //nolint:errcheck // Written by this package

	return &d, nil
}

// parseTimestamp accepts RFC 3339 with or without fractional seconds, and
// the plain "2006-01-02 15:04:05" form older rows used.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(EventTimeLayout, s, time.Local)
}

// nullableStatus encodes Status as NULL, 0 or 1.
func nullableStatus(s Status) sql.NullInt64 {
	online := s.Online()
	if online == nil {
		return sql.NullInt64{}
	}
	if *online {
		return sql.NullInt64{Int64: 1, Valid: true}
	}
	return sql.NullInt64{Int64: 0, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers.
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDeviceNotFound
	}
	return storeError(op, err)
}

// storeError tags err as a persistence failure while keeping the cause.
func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
