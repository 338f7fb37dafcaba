package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timeFormat is the layout of every timestamp column.
const timeFormat = time.RFC3339Nano

// SQLiteRepository stores things, their last status and channel values,
// and the discovery inbox.
//
// The stored status and channel values are for display. The bridge never
// reads them back: status always comes from the gateway.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// UpsertThing inserts a thing or updates its identity fields. The stored
// status is left unchanged on update.
//
// Returns:
//   - error: ErrInvalidThing if ID, UID or Type is empty
func (r *SQLiteRepository) UpsertThing(ctx context.Context, t Thing) error {
	if t.ID == "" || t.UID == "" || t.Type == "" {
		return fmt.Errorf("%w: id, uid and type are required", ErrInvalidThing)
	}

	query := `
		INSERT INTO things (id, uid, bridge_id, type, where_addr, label, status, status_detail, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uid = excluded.uid,
			bridge_id = excluded.bridge_id,
			type = excluded.type,
			where_addr = excluded.where_addr,
			label = excluded.label,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.UID, t.BridgeID, t.Type, t.Where, t.Label,
		defaultStatus, defaultDetail, r.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("upserting thing %s: %w", t.ID, err)
	}
	return nil
}

// UpdateStatus records the latest status of a thing.
//
// Returns:
//   - error: ErrThingNotFound if the thing does not exist
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id, status, detail, description string) error {
	query := `
		UPDATE things
		SET status = ?, status_detail = ?, status_description = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, status, detail, description, r.timestamp(), id)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", id, err)
	}
	return expectRow(result, ErrThingNotFound)
}

// SetProperty stores a runtime property such as the firmware version.
func (r *SQLiteRepository) SetProperty(ctx context.Context, id, name, value string) error {
	query := `
		INSERT INTO thing_properties (thing_id, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thing_id, name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, id, name, value, r.timestamp()); err != nil {
		return fmt.Errorf("setting property %s of %s: %w", name, id, err)
	}
	return nil
}

// SaveChannelState stores the last value published for a channel.
func (r *SQLiteRepository) SaveChannelState(ctx context.Context, id, channel, value string) error {
	query := `
		INSERT INTO channel_state (thing_id, channel, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thing_id, channel) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, id, channel, value, r.timestamp()); err != nil {
		return fmt.Errorf("saving channel %s of %s: %w", channel, id, err)
	}
	return nil
}

// GetThing returns a thing with its properties and channel values.
//
// Returns:
//   - error: ErrThingNotFound if the thing does not exist
func (r *SQLiteRepository) GetThing(ctx context.Context, id string) (*Thing, error) {
	things, err := r.queryThings(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(things) == 0 {
		return nil, ErrThingNotFound
	}
	return &things[0], nil
}

// ListThings returns every thing ordered by bridge and id. Bridges sort
// first because their bridge_id is empty.
func (r *SQLiteRepository) ListThings(ctx context.Context) ([]Thing, error) {
	return r.queryThings(ctx, "")
}

// RemoveThingsExcept deletes the things, properties and channel values of
// every id not in keep. Used at startup to drop things removed from the
// configuration.
//
// Returns:
//   - int64: the number of things removed
func (r *SQLiteRepository) RemoveThingsExcept(ctx context.Context, keep []string) (removed int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback() //nolint:errcheck // rollback after a failed statement
		}
	}()

	filter, args := notIn("id", keep)
	result, err := tx.ExecContext(ctx, "DELETE FROM things"+filter, args...)
	if err != nil {
		return 0, fmt.Errorf("removing things: %w", err)
	}
	if removed, err = result.RowsAffected(); err != nil {
		return 0, fmt.Errorf("counting removed things: %w", err)
	}

	filter, args = notIn("thing_id", keep)
	for _, table := range []string{"thing_properties", "channel_state"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+filter, args...); err != nil {
			return 0, fmt.Errorf("removing rows from %s: %w", table, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing removal: %w", err)
	}
	return removed, nil
}

// SaveDiscovery adds or refreshes a discovery inbox entry.
func (r *SQLiteRepository) SaveDiscovery(ctx context.Context, d DiscoveryResult) error {
	if d.FoundAt.IsZero() {
		d.FoundAt = r.now()
	}

	query := `
		INSERT INTO discovery_results (thing_uid, bridge_id, thing_type, label, where_addr, scan_id, found_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thing_uid) DO UPDATE SET
			bridge_id = excluded.bridge_id,
			thing_type = excluded.thing_type,
			label = excluded.label,
			where_addr = excluded.where_addr,
			scan_id = excluded.scan_id,
			found_at = excluded.found_at`

	_, err := r.db.ExecContext(ctx, query,
		d.ThingUID, d.BridgeID, d.ThingType, d.Label, d.Where, d.ScanID,
		d.FoundAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("saving discovery result %s: %w", d.ThingUID, err)
	}
	return nil
}

// DeleteDiscovery removes an inbox entry.
//
// Returns:
//   - error: ErrDiscoveryNotFound if the entry does not exist
func (r *SQLiteRepository) DeleteDiscovery(ctx context.Context, thingUID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM discovery_results WHERE thing_uid = ?", thingUID)
	if err != nil {
		return fmt.Errorf("deleting discovery result %s: %w", thingUID, err)
	}
	return expectRow(result, ErrDiscoveryNotFound)
}

// ListDiscovery returns the inbox of one bridge, or of every bridge when
// bridgeID is empty, ordered by thing UID.
func (r *SQLiteRepository) ListDiscovery(ctx context.Context, bridgeID string) ([]DiscoveryResult, error) {
	query := `
		SELECT thing_uid, bridge_id, thing_type, label, where_addr, scan_id, found_at
		FROM discovery_results`
	var args []any
	if bridgeID != "" {
		query += " WHERE bridge_id = ?"
		args = append(args, bridgeID)
	}
	query += " ORDER BY thing_uid"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying discovery results: %w", err)
	}
	defer rows.Close()

	var results []DiscoveryResult
	for rows.Next() {
		var d DiscoveryResult
		var foundAt string
		if err := rows.Scan(&d.ThingUID, &d.BridgeID, &d.ThingType, &d.Label, &d.Where, &d.ScanID, &foundAt); err != nil {
			return nil, fmt.Errorf("scanning discovery result: %w", err)
		}
		d.FoundAt = parseTime(foundAt)
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating discovery results: %w", err)
	}
	return results, nil
}

func (r *SQLiteRepository) queryThings(ctx context.Context, where string, args ...any) ([]Thing, error) {
	query := `
		SELECT id, uid, bridge_id, type, where_addr, label,
			status, status_detail, status_description, updated_at
		FROM things ` + where + `
		ORDER BY bridge_id, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying things: %w", err)
	}
	defer rows.Close()

	var things []Thing
	index := make(map[string]int)
	for rows.Next() {
		var t Thing
		var updatedAt string
		if err := rows.Scan(&t.ID, &t.UID, &t.BridgeID, &t.Type, &t.Where, &t.Label,
			&t.Status, &t.StatusDetail, &t.StatusDescription, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning thing: %w", err)
		}
		t.UpdatedAt = parseTime(updatedAt)
		index[t.ID] = len(things)
		things = append(things, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating things: %w", err)
	}
	if len(things) == 0 {
		return things, nil
	}

	if err := r.attachProperties(ctx, things, index); err != nil {
		return nil, err
	}
	if err := r.attachChannels(ctx, things, index); err != nil {
		return nil, err
	}
	return things, nil
}

func (r *SQLiteRepository) attachProperties(ctx context.Context, things []Thing, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, "SELECT thing_id, name, value FROM thing_properties")
	if err != nil {
		return fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, value string
		if err := rows.Scan(&id, &name, &value); err != nil {
			return fmt.Errorf("scanning property: %w", err)
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		if things[i].Properties == nil {
			things[i].Properties = make(map[string]string)
		}
		things[i].Properties[name] = value
	}
	return rows.Err()
}

func (r *SQLiteRepository) attachChannels(ctx context.Context, things []Thing, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, "SELECT thing_id, channel, value, updated_at FROM channel_state")
	if err != nil {
		return fmt.Errorf("querying channel state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, channel, value, updatedAt string
		if err := rows.Scan(&id, &channel, &value, &updatedAt); err != nil {
			return fmt.Errorf("scanning channel state: %w", err)
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		if things[i].Channels == nil {
			things[i].Channels = make(map[string]ChannelValue)
		}
		things[i].Channels[channel] = ChannelValue{Value: value, UpdatedAt: parseTime(updatedAt)}
	}
	return rows.Err()
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(timeFormat)
}

// notIn builds " WHERE col NOT IN (?, ...)"; an empty list matches every row.
func notIn(column string, values []string) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	return " WHERE " + column + " NOT IN (" + placeholders + ")", args
}

func expectRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrThingNotFound) || errors.Is(err, ErrDiscoveryNotFound)
}
