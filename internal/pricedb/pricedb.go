package pricedb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/patrickmn/go-cache"
	"github.com/tkrajina/gpxgo/gpx"
)

const (
	defaultCacheExpirationMinutes = 10
	defaultCacheCleanupMinutes    = 30
	busyTimeoutMs                 = 10000
	timeLayout                    = time.RFC3339
)

// fuelColumns maps the fuel names accepted by queries to their column.
var fuelColumns = map[string]string{
	"diesel": "diesel",
	"e5":     "e5",
	"e10":    "e10",
}

type Storage struct {
	db    *sql.DB
	cache *cache.Cache
	log   *slog.Logger
}

// Search is a recorded price lookup.
type Search struct {
	ID         int64
	SearchedAt time.Time
	PostalCode string
	Country    string
	Latitude   float64
	Longitude  float64
	Radius     int
	Sort       string
	Stations   int
}

// PriceRecord is one station's prices as seen by one search. Prices the
// service did not report are nil.
type PriceRecord struct {
	SearchID   int64
	SearchedAt time.Time
	StationID  string
	Name       string
	Brand      string
	Diesel     *float64
	E5         *float64
	E10        *float64
	Dist       *float64
	Latitude   float64
	Longitude  float64
	// Distance in meters from the point passed to NearbyPrices.
	Distance float64
}

// Price returns the price for the named fuel.
func (r *PriceRecord) Price(fuel string) *float64 {
	switch fuel {
	case "diesel":
		return r.Diesel
	case "e5":
		return r.E5
	case "e10":
		return r.E10
	}
	return nil
}

func NewStorage(ctx context.Context, dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// Connection scoped pragmas such as foreign_keys must hold for every query.
	db.SetMaxOpenConns(1)

	if err := configureSQLitePragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	s := &Storage{
		db:    db,
		cache: cache.New(defaultCacheExpirationMinutes*time.Minute, defaultCacheCleanupMinutes*time.Minute),
		log:   logger,
	}

	if err := s.CreateTrigger(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating trigger: %w", err)
	}

	return s, nil
}

func configureSQLitePragmas(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMs)); err != nil {
		return fmt.Errorf("error setting busy timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("error setting journal mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
		return fmt.Errorf("error setting synchronous: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return fmt.Errorf("error enabling foreign keys: %w", err)
	}
	return nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS searches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		searched_at TEXT NOT NULL,
		postal_code TEXT,
		country TEXT,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		radius INTEGER NOT NULL,
		sort TEXT NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_searches_searched_at ON searches(searched_at);

	CREATE TABLE IF NOT EXISTS station_prices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		search_id INTEGER NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
		station_id TEXT NOT NULL,
		name TEXT,
		brand TEXT,
		diesel REAL,
		e5 REAL,
		e10 REAL,
		dist REAL,
		latitude REAL,
		longitude REAL,
		UNIQUE(search_id, station_id)
	);
	CREATE INDEX IF NOT EXISTS idx_station_prices_station_id ON station_prices(station_id);
	`

	_, err := db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("error creating table: %w", err)
	}
	return nil
}

// priceExpr extracts a numeric field from a station object. Quoted numbers
// are cast and anything else becomes NULL.
func priceExpr(field string) string {
	path := "'$." + field + "'"
	return `CASE json_type(station.value, ` + path + `)
				WHEN 'real' THEN json_extract(station.value, ` + path + `)
				WHEN 'integer' THEN json_extract(station.value, ` + path + `)
				WHEN 'text' THEN CAST(json_extract(station.value, ` + path + `) AS REAL)
			END`
}

// CreateTrigger installs the trigger that explodes each saved response into
// station_prices rows.
func (s *Storage) CreateTrigger(ctx context.Context) error {
	createTriggerSQL := `
	CREATE TRIGGER IF NOT EXISTS insert_station_prices
	AFTER INSERT ON searches
	BEGIN
		INSERT OR REPLACE INTO station_prices (
			search_id, station_id, name, brand, diesel, e5, e10, dist, latitude, longitude
		)
		SELECT
			NEW.id,
			json_extract(station.value, '$.id'),
			json_extract(station.value, '$.name'),
			json_extract(station.value, '$.brand'),
			` + priceExpr("diesel") + `,
			` + priceExpr("e5") + `,
			` + priceExpr("e10") + `,
			` + priceExpr("dist") + `,
			` + priceExpr("lat") + `,
			` + priceExpr("lng") + `
		FROM json_each(json_extract(NEW.data, '$.stations')) AS station
		WHERE json_extract(station.value, '$.id') IS NOT NULL;
	END;
	`

	_, err := s.db.ExecContext(ctx, createTriggerSQL)
	if err != nil {
		return fmt.Errorf("error creating trigger: %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	if s.cache != nil {
		s.cache.Flush()
	}
	return s.db.Close()
}

// SaveSearch records a lookup together with the raw list.php response body.
// The returned ID identifies the search.
func (s *Storage) SaveSearch(ctx context.Context, search Search, data []byte) (int64, error) {
	if search.SearchedAt.IsZero() {
		search.SearchedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.log.Error("rollback error", "error", err)
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO searches (searched_at, postal_code, country, latitude, longitude, radius, sort, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		search.SearchedAt.UTC().Format(timeLayout), search.PostalCode, search.Country,
		search.Latitude, search.Longitude, search.Radius, search.Sort, string(data),
	)
	if err != nil {
		return 0, fmt.Errorf("error inserting search: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error reading search id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transaction: %w", err)
	}

	s.cache.Flush()
	s.log.Debug("Search recorded", "id", id, "postal_code", search.PostalCode)

	return id, nil
}

// Searches returns the most recent searches first. A limit <= 0 returns all.
func (s *Storage) Searches(ctx context.Context, limit int) ([]Search, error) {
	query := `
		SELECT s.id, s.searched_at, COALESCE(s.postal_code, ''), COALESCE(s.country, ''),
			s.latitude, s.longitude, s.radius, s.sort,
			(SELECT COUNT(*) FROM station_prices sp WHERE sp.search_id = s.id)
		FROM searches s
		ORDER BY s.id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying searches: %w", err)
	}
	defer rows.Close()

	var searches []Search
	for rows.Next() {
		var (
			search     Search
			searchedAt string
		)
		if err := rows.Scan(&search.ID, &searchedAt, &search.PostalCode, &search.Country,
			&search.Latitude, &search.Longitude, &search.Radius, &search.Sort, &search.Stations); err != nil {
			return nil, fmt.Errorf("error scanning search: %w", err)
		}
		search.SearchedAt, err = time.Parse(timeLayout, searchedAt)
		if err != nil {
			return nil, fmt.Errorf("error parsing date %s: %w", searchedAt, err)
		}
		searches = append(searches, search)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error: %w", err)
	}
	return searches, nil
}

const priceRecordColumns = `
	sp.search_id, s.searched_at, sp.station_id, COALESCE(sp.name, ''), COALESCE(sp.brand, ''),
	sp.diesel, sp.e5, sp.e10, sp.dist, COALESCE(sp.latitude, 0), COALESCE(sp.longitude, 0)`

// StationPrices returns the stations recorded for a search, in the order the
// service returned them.
func (s *Storage) StationPrices(ctx context.Context, searchID int64) ([]PriceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+priceRecordColumns+`
		FROM station_prices sp
		JOIN searches s ON s.id = sp.search_id
		WHERE sp.search_id = ?
		ORDER BY sp.id ASC`, searchID)
	if err != nil {
		return nil, fmt.Errorf("error querying station prices: %w", err)
	}
	return scanPriceRecords(rows)
}

// CheapestPrices returns the lowest recorded prices for fuel across all
// searches, cheapest first.
func (s *Storage) CheapestPrices(ctx context.Context, fuel string, limit int) ([]PriceRecord, error) {
	column, ok := fuelColumns[fuel]
	if !ok {
		return nil, fmt.Errorf("unknown fuel %q: must be diesel, e5 or e10", fuel)
	}

	query := `
		SELECT` + priceRecordColumns + `
		FROM station_prices sp
		JOIN searches s ON s.id = sp.search_id
		WHERE sp.` + column + ` IS NOT NULL
		ORDER BY sp.` + column + ` ASC, s.searched_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying cheapest prices: %w", err)
	}
	return scanPriceRecords(rows)
}

// NearbyPrices returns the latest recorded prices of every station within
// distance meters of lat/lng, nearest first.
func (s *Storage) NearbyPrices(ctx context.Context, lat, lng, distance float64) ([]PriceRecord, error) {
	cacheKey := fmt.Sprintf("nearby_prices_%f_%f_%f", lat, lng, distance)
	if cachedData, found := s.cache.Get(cacheKey); found {
		s.log.Debug("Using cached data", "key", cacheKey)
		return cachedData.([]PriceRecord), nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT`+priceRecordColumns+`
		FROM station_prices sp
		JOIN searches s ON s.id = sp.search_id
		WHERE sp.latitude IS NOT NULL AND sp.longitude IS NOT NULL
		AND sp.id IN (SELECT MAX(id) FROM station_prices GROUP BY station_id)`)
	if err != nil {
		return nil, fmt.Errorf("error querying station prices: %w", err)
	}
	records, err := scanPriceRecords(rows)
	if err != nil {
		return nil, err
	}

	var nearby []PriceRecord
	for _, r := range records {
		r.Distance = gpx.Distance2D(lat, lng, r.Latitude, r.Longitude, true)
		if r.Distance <= distance {
			nearby = append(nearby, r)
		}
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].Distance < nearby[j].Distance
	})

	s.cache.Set(cacheKey, nearby, cache.DefaultExpiration)
	return nearby, nil
}

// DeleteOldSearches removes searches older than daysOld days along with
// their station rows.
func (s *Storage) DeleteOldSearches(ctx context.Context, daysOld int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -daysOld).UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, "DELETE FROM searches WHERE searched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("error deleting old searches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading affected rows: %w", err)
	}
	s.cache.Flush()
	s.log.Debug("Deleted old searches", "count", n, "cutoff", cutoff)
	return n, nil
}

func scanPriceRecords(rows *sql.Rows) ([]PriceRecord, error) {
	defer rows.Close()

	var records []PriceRecord
	for rows.Next() {
		var (
			r                     PriceRecord
			searchedAt            string
			diesel, e5, e10, dist sql.NullFloat64
		)
		if err := rows.Scan(&r.SearchID, &searchedAt, &r.StationID, &r.Name, &r.Brand,
			&diesel, &e5, &e10, &dist, &r.Latitude, &r.Longitude); err != nil {
			return nil, fmt.Errorf("error scanning station price: %w", err)
		}
		t, err := time.Parse(timeLayout, searchedAt)
		if err != nil {
			return nil, fmt.Errorf("error parsing date %s: %w", searchedAt, err)
		}
		r.SearchedAt = t
		r.Diesel = nullFloat(diesel)
		r.E5 = nullFloat(e5)
		r.E10 = nullFloat(e10)
		r.Dist = nullFloat(dist)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error: %w", err)
	}
	return records, nil
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}
