package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createStationsTableSQL = `
CREATE TABLE IF NOT EXISTS stations (
	name               TEXT PRIMARY KEY,
	location           TEXT NOT NULL DEFAULT '',
	shortname          TEXT NOT NULL,
	decoupling         REAL NOT NULL DEFAULT 0,
	smooth             TEXT NOT NULL DEFAULT 'false',
	grid_time          INTEGER NOT NULL DEFAULT 0,
	max_no_nodes       INTEGER NOT NULL,
	thres_factor_co    REAL NOT NULL,
	thres_factor_cx    REAL NOT NULL,
	ldr                INTEGER NOT NULL DEFAULT 0,
	station_altitude   REAL NOT NULL DEFAULT 0,
	roll_velocity      REAL,
	velocity_bin_scale REAL,
	add_to_fname       TEXT,
	peak_finding       TEXT
)`

// SQLiteProvider implements ConfigProvider for station profiles kept in a
// SQLite database. Use cmd/config-convert to populate one from TOML or YAML.
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens (and if needed initializes) a SQLite profile database
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(createStationsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create stations table: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads and validates every station profile in the database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	rows, err := s.db.Query(`
		SELECT name, location, shortname, decoupling, smooth, grid_time,
		       max_no_nodes, thres_factor_co, thres_factor_cx, ldr,
		       station_altitude, roll_velocity, velocity_bin_scale,
		       add_to_fname, peak_finding
		FROM stations
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	cfg := &ConfigData{}
	for rows.Next() {
		p, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		cfg.Stations = append(cfg.Stations, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetStation returns one station profile
func (s *SQLiteProvider) GetStation(name string) (*StationProfile, error) {
	row := s.db.QueryRow(`
		SELECT name, location, shortname, decoupling, smooth, grid_time,
		       max_no_nodes, thres_factor_co, thres_factor_cx, ldr,
		       station_altitude, roll_velocity, velocity_bin_scale,
		       add_to_fname, peak_finding
		FROM stations
		WHERE name = ?`, NormalizeName(name))

	p, err := scanStation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("station %q not found", name)
	}
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveStation inserts or replaces a station profile
func (s *SQLiteProvider) SaveStation(p *StationProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var peakFinding sql.NullString
	if p.Settings.PeakFinding != nil {
		b, err := json.Marshal(p.Settings.PeakFinding)
		if err != nil {
			return fmt.Errorf("failed to encode peak finding params: %w", err)
		}
		peakFinding = sql.NullString{String: string(b), Valid: true}
	}

	st := p.Settings
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO stations (
			name, location, shortname, decoupling, smooth, grid_time,
			max_no_nodes, thres_factor_co, thres_factor_cx, ldr,
			station_altitude, roll_velocity, velocity_bin_scale,
			add_to_fname, peak_finding
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		NormalizeName(p.Name), p.Location, p.Shortname, st.Decoupling, st.Smooth.String(),
		int64(st.GridTime/time.Second), st.MaxNoNodes, st.ThresFactorCo, st.ThresFactorCx, st.LDR,
		st.StationAltitude, nullFloat(st.RollVelocity), nullFloat(st.VelocityBinScale),
		nullString(st.AddToFname), peakFinding,
	)
	if err != nil {
		return fmt.Errorf("failed to save station %s: %w", p.Name, err)
	}
	return nil
}

// IsReadOnly returns false, profiles can be written with SaveStation
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (*StationProfile, error) {
	var (
		p                          StationProfile
		smooth                     string
		gridSeconds                int64
		roll, binScale             sql.NullFloat64
		addToFname, peakFindingDoc sql.NullString
	)
	st := &p.Settings
	err := row.Scan(
		&p.Name, &p.Location, &p.Shortname, &st.Decoupling, &smooth, &gridSeconds,
		&st.MaxNoNodes, &st.ThresFactorCo, &st.ThresFactorCx, &st.LDR,
		&st.StationAltitude, &roll, &binScale, &addToFname, &peakFindingDoc,
	)
	if err != nil {
		return nil, err
	}

	if st.Smooth, err = ParseSmoothMode(smooth); err != nil {
		return nil, &ConfigurationError{Station: p.Name, Field: "settings.smooth", Reason: err.Error()}
	}
	st.GridTime = time.Duration(gridSeconds) * time.Second
	st.RollVelocity = roll.Float64
	st.VelocityBinScale = binScale.Float64
	st.AddToFname = addToFname.String

	if peakFindingDoc.Valid {
		st.PeakFinding = &PeakFindingParams{}
		if err := json.Unmarshal([]byte(peakFindingDoc.String), st.PeakFinding); err != nil {
			return nil, &ConfigurationError{Station: p.Name, Field: "settings.peak_finding_params", Reason: err.Error()}
		}
	}
	return &p, nil
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
