package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("store: not found")

// AddCity upserts a city by banana and replaces its zipcode set, marking
// the first zipcode given as primary.
func (s *Store) AddCity(c City) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO cities (banana, name, state, vendor, vendor_slug, county, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(NULLIF(?, ''), 'active'), datetime('now'))
		ON CONFLICT(banana) DO UPDATE SET
			name = excluded.name,
			state = excluded.state,
			vendor = excluded.vendor,
			vendor_slug = excluded.vendor_slug,
			county = excluded.county,
			status = CASE WHEN excluded.status != '' THEN excluded.status ELSE cities.status END,
			updated_at = datetime('now')`,
		c.Banana, c.Name, c.State, c.Vendor, c.VendorSlug, c.County, c.Status)
	if err != nil {
		return fmt.Errorf("upsert city %s: %w", c.Banana, err)
	}

	if _, err := tx.Exec(`DELETE FROM city_zipcodes WHERE city_banana = ?`, c.Banana); err != nil {
		return fmt.Errorf("clear zipcodes for %s: %w", c.Banana, err)
	}
	for i, z := range c.Zipcodes {
		if _, err := tx.Exec(`INSERT INTO city_zipcodes (city_banana, zipcode, is_primary) VALUES (?, ?, ?)`,
			c.Banana, z, i == 0); err != nil {
			return fmt.Errorf("insert zipcode %s for %s: %w", z, c.Banana, err)
		}
	}

	return tx.Commit()
}

// GetCityByBanana looks up a city by its primary key.
func (s *Store) GetCityByBanana(banana string) (*City, error) {
	return s.scanCity(`WHERE banana = ?`, banana)
}

// GetCityByNameState looks up a city by normalized name+state matching.
func (s *Store) GetCityByNameState(name, state string) (*City, error) {
	return s.scanCity(`WHERE LOWER(REPLACE(name, ' ', '')) = ? AND UPPER(state) = ?`,
		NormalizeNameState(name), strings.ToUpper(state))
}

// GetCityByVendorSlug looks up a city by its vendor-specific identifier.
func (s *Store) GetCityByVendorSlug(vendor, slug string) (*City, error) {
	return s.scanCity(`WHERE vendor = ? AND vendor_slug = ?`, vendor, slug)
}

// GetCityByZipcode looks up a city via its zipcode relation.
func (s *Store) GetCityByZipcode(zipcode string) (*City, error) {
	return s.scanCity(`WHERE banana = (SELECT city_banana FROM city_zipcodes WHERE zipcode = ? ORDER BY is_primary DESC LIMIT 1)`, zipcode)
}

func (s *Store) scanCity(whereClause string, args ...any) (*City, error) {
	row := s.db.QueryRow(fmt.Sprintf(`
		SELECT banana, name, state, vendor, vendor_slug, county, status, created_at, updated_at, last_synced_at
		FROM cities %s`, whereClause), args...)

	var c City
	if err := row.Scan(&c.Banana, &c.Name, &c.State, &c.Vendor, &c.VendorSlug, &c.County, &c.Status, &c.CreatedAt, &c.UpdatedAt, &c.LastSyncedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	zips, err := s.zipcodesForCity(c.Banana)
	if err != nil {
		return nil, err
	}
	c.Zipcodes = zips
	return &c, nil
}

func (s *Store) zipcodesForCity(banana string) ([]string, error) {
	rows, err := s.db.Query(`SELECT zipcode FROM city_zipcodes WHERE city_banana = ? ORDER BY is_primary DESC, zipcode`, banana)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zips []string
	for rows.Next() {
		var z string
		if err := rows.Scan(&z); err != nil {
			return nil, err
		}
		zips = append(zips, z)
	}
	return zips, rows.Err()
}

// GetCities returns an active-by-default filtered scan of cities.
func (s *Store) GetCities(state, vendor, name, status string, limit int) ([]City, error) {
	if status == "" {
		status = "active"
	}
	query := `SELECT banana, name, state, vendor, vendor_slug, county, status, created_at, updated_at, last_synced_at FROM cities WHERE status = ?`
	args := []any{status}

	if state != "" {
		query += ` AND UPPER(state) = ?`
		args = append(args, strings.ToUpper(state))
	}
	if vendor != "" {
		query += ` AND vendor = ?`
		args = append(args, vendor)
	}
	if name != "" {
		query += ` AND name LIKE ?`
		args = append(args, "%"+name+"%")
	}
	query += ` ORDER BY name`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cities []City
	for rows.Next() {
		var c City
		if err := rows.Scan(&c.Banana, &c.Name, &c.State, &c.Vendor, &c.VendorSlug, &c.County, &c.Status, &c.CreatedAt, &c.UpdatedAt, &c.LastSyncedAt); err != nil {
			return nil, err
		}
		zips, err := s.zipcodesForCity(c.Banana)
		if err != nil {
			return nil, err
		}
		c.Zipcodes = zips
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// MarkCitySynced stamps a city's last_synced_at to now, called after a sync
// sweep completes for that city regardless of whether new meetings were
// found.
func (s *Store) MarkCitySynced(banana string) error {
	res, err := s.db.Exec(`UPDATE cities SET last_synced_at = datetime('now') WHERE banana = ?`, banana)
	if err != nil {
		return fmt.Errorf("mark city synced %s: %w", banana, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentMeetingCount returns how many meetings for banana were created in
// the last 30 days, used as the volume term of the sync-priority score.
func (s *Store) RecentMeetingCount(banana string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM meetings
		WHERE city_banana = ? AND created_at >= datetime('now', '-30 days')`,
		banana).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("recent meeting count for %s: %w", banana, err)
	}
	return count, nil
}
