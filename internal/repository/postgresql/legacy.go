package postgresql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"

	"parktronic/internal/domain"
)

// The earlier schema generation stored coordinates and free places as JSON
// text. The upgrade below rewrites them into array columns. A value that does
// not parse becomes an empty sequence and is reported as a data-quality
// warning; it never fails the migration.

func upgradeLegacyColumns(ctx context.Context, tx *sql.Tx, log *zap.Logger) error {
	lotsExist, err := tableExists(ctx, tx, "parking_lots")
	if err != nil {
		return err
	}
	if lotsExist {
		if err := convertTextColumn(ctx, tx, log, "parking_lots", "coordinates", "DOUBLE PRECISION[][]", polylineConverter); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			ALTER TABLE parking_lots
				ADD COLUMN IF NOT EXISTS created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP`); err != nil {
			return fmt.Errorf("add lot timestamps: %w", err)
		}
	}

	if err := upgradeUsers(ctx, tx); err != nil {
		return err
	}

	rowsExist, err := tableExists(ctx, tx, "rows")
	if err != nil {
		return err
	}
	if !rowsExist {
		return nil
	}
	if err := splitRowCoordinates(ctx, tx, log); err != nil {
		return err
	}
	for _, column := range []string{"coordinate_1", "coordinate_2", "coordinate_3"} {
		if err := convertTextColumn(ctx, tx, log, "rows", column, "DOUBLE PRECISION[][]", polylineConverter); err != nil {
			return err
		}
	}
	return convertTextColumn(ctx, tx, log, "rows", "free_places", "INTEGER[]", freePlacesConverter)
}

// upgradeUsers renames the legacy plain password column. Those values are
// re-hashed by the auth service on the user's next successful login.
func upgradeUsers(ctx context.Context, tx *sql.Tx) error {
	typ, err := columnType(ctx, tx, "users", "password")
	if err != nil {
		return fmt.Errorf("inspect users.password: %w", err)
	}
	if typ == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE users RENAME COLUMN password TO password_hash`); err != nil {
		return fmt.Errorf("rename users.password: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE users ADD COLUMN IF NOT EXISTS created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP`); err != nil {
		return fmt.Errorf("add users.created_at: %w", err)
	}
	return nil
}

func tableExists(ctx context.Context, tx *sql.Tx, table string) (bool, error) {
	typ, err := columnType(ctx, tx, table, "id")
	if err != nil {
		return false, fmt.Errorf("inspect table %s: %w", table, err)
	}
	return typ != "", nil
}

func isTextType(dataType string) bool {
	return dataType == "text" || dataType == "character varying"
}

type legacyValue struct {
	id   int
	text null.String
}

func readLegacyColumn(ctx context.Context, tx *sql.Tx, table, column string) ([]legacyValue, error) {
	query := fmt.Sprintf(`SELECT id, %s FROM %s ORDER BY id`, pq.QuoteIdentifier(column), pq.QuoteIdentifier(table))
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []legacyValue
	for rows.Next() {
		var v legacyValue
		if err := rows.Scan(&v.id, &v.text); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func warnDataQuality(log *zap.Logger, table, column string, v legacyValue) {
	log.Warn("data quality: unparsable legacy value replaced with an empty sequence",
		zap.String("table", table),
		zap.String("column", column),
		zap.Int("id", v.id),
		zap.String("value", v.text.String))
}

type converter func(null.String) (driver.Valuer, bool)

func polylineConverter(s null.String) (driver.Valuer, bool) {
	l, ok := parseLegacyPolyline(s)
	return polylineValue(l), ok
}

func freePlacesConverter(s null.String) (driver.Valuer, bool) {
	f, ok := parseLegacyFreePlaces(s)
	return freePlacesValue(f), ok
}

// convertTextColumn replaces a text column with a typed one holding the
// converted values. It is a no-op when the column is missing or already typed.
func convertTextColumn(ctx context.Context, tx *sql.Tx, log *zap.Logger, table, column, sqlType string, convert converter) error {
	typ, err := columnType(ctx, tx, table, column)
	if err != nil {
		return fmt.Errorf("inspect %s.%s: %w", table, column, err)
	}
	if !isTextType(typ) {
		return nil
	}

	values, err := readLegacyColumn(ctx, tx, table, column)
	if err != nil {
		return fmt.Errorf("read %s.%s: %w", table, column, err)
	}

	tbl, col, tmp := pq.QuoteIdentifier(table), pq.QuoteIdentifier(column), pq.QuoteIdentifier(column+"_typed")
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s NOT NULL DEFAULT '{}'`, tbl, tmp, sqlType)); err != nil {
		return fmt.Errorf("add %s.%s_typed: %w", table, column, err)
	}
	update := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE id = $2`, tbl, tmp)
	for _, v := range values {
		val, ok := convert(v.text)
		if !ok {
			warnDataQuality(log, table, column, v)
		}
		if _, err := tx.ExecContext(ctx, update, val, v.id); err != nil {
			return fmt.Errorf("convert %s.%s id=%d: %w", table, column, v.id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s DROP COLUMN %s`, tbl, col)); err != nil {
		return fmt.Errorf("drop %s.%s: %w", table, column, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME COLUMN %s TO %s`, tbl, tmp, col)); err != nil {
		return fmt.Errorf("rename %s.%s_typed: %w", table, column, err)
	}
	log.Info("converted legacy text column", zap.String("table", table), zap.String("column", column), zap.Int("values", len(values)))
	return nil
}

// splitRowCoordinates moves the legacy single rows.coordinates text column
// into coordinate_1/2/3.
func splitRowCoordinates(ctx context.Context, tx *sql.Tx, log *zap.Logger) error {
	typ, err := columnType(ctx, tx, "rows", "coordinates")
	if err != nil {
		return fmt.Errorf("inspect rows.coordinates: %w", err)
	}
	if !isTextType(typ) {
		return nil
	}

	values, err := readLegacyColumn(ctx, tx, "rows", "coordinates")
	if err != nil {
		return fmt.Errorf("read rows.coordinates: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		ALTER TABLE rows
			ADD COLUMN IF NOT EXISTS coordinate_1 DOUBLE PRECISION[][] NOT NULL DEFAULT '{}',
			ADD COLUMN IF NOT EXISTS coordinate_2 DOUBLE PRECISION[][] NOT NULL DEFAULT '{}',
			ADD COLUMN IF NOT EXISTS coordinate_3 DOUBLE PRECISION[][] NOT NULL DEFAULT '{}'`); err != nil {
		return fmt.Errorf("add row coordinate columns: %w", err)
	}
	for _, v := range values {
		c, ok := parseLegacyRowCoordinates(v.text)
		if !ok {
			warnDataQuality(log, "rows", "coordinates", v)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE rows SET coordinate_1 = $1, coordinate_2 = $2, coordinate_3 = $3 WHERE id = $4`,
			polylineValue(c[0]), polylineValue(c[1]), polylineValue(c[2]), v.id); err != nil {
			return fmt.Errorf("convert rows.coordinates id=%d: %w", v.id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE rows DROP COLUMN coordinates`); err != nil {
		return fmt.Errorf("drop rows.coordinates: %w", err)
	}
	return nil
}

// isMissing reports legacy values that carry no data at all. They become an
// empty sequence without a warning.
func isMissing(s null.String) (string, bool) {
	text := strings.TrimSpace(s.ValueOrZero())
	return text, text == "" || text == "null" || text == "None"
}

// parseLegacyPolyline accepts a JSON list of pairs or a single flat pair.
func parseLegacyPolyline(s null.String) (domain.Polyline, bool) {
	text, missing := isMissing(s)
	if missing {
		return domain.Polyline{}, true
	}
	var line []domain.Point
	if err := json.Unmarshal([]byte(text), &line); err == nil {
		return append(domain.Polyline{}, line...), true
	}
	var p domain.Point
	if err := json.Unmarshal([]byte(text), &p); err == nil {
		return domain.Polyline{p}, true
	}
	return domain.Polyline{}, false
}

func parseLegacyRowCoordinates(s null.String) (domain.RowCoordinates, bool) {
	empty := domain.RowCoordinates{{}, {}, {}}
	text, missing := isMissing(s)
	if missing {
		return empty, true
	}
	var c domain.RowCoordinates
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return empty, false
	}
	for i := range c {
		if c[i] == nil {
			c[i] = domain.Polyline{}
		}
	}
	return c, true
}

func parseLegacyFreePlaces(s null.String) (domain.FreePlaces, bool) {
	text, missing := isMissing(s)
	if missing {
		return domain.FreePlaces{}, true
	}
	var f []int
	if err := json.Unmarshal([]byte(text), &f); err != nil {
		return domain.FreePlaces{}, false
	}
	out := append(domain.FreePlaces{}, f...)
	if out.Validate() != nil {
		return domain.FreePlaces{}, false
	}
	return out, true
}
