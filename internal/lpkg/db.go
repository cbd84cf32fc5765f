package lpkg

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"lpkg/pkgs"
)

// PackageStore persists scaffolded package definitions in SQLite, keyed by
// (name, version). List columns hold JSON arrays so the definition round
// trips without a join table.
type PackageStore struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS packages (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	version          TEXT NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	md5              TEXT NOT NULL DEFAULT '',
	stage            TEXT NOT NULL DEFAULT '',
	variant          TEXT NOT NULL DEFAULT '',
	notes            TEXT NOT NULL DEFAULT '',
	configure_args   TEXT NOT NULL DEFAULT '[]',
	build_commands   TEXT NOT NULL DEFAULT '[]',
	install_commands TEXT NOT NULL DEFAULT '[]',
	dependencies     TEXT NOT NULL DEFAULT '[]',
	enable_lto       INTEGER NOT NULL DEFAULT 0,
	enable_pgo       INTEGER NOT NULL DEFAULT 0,
	cflags           TEXT NOT NULL DEFAULT '[]',
	ldflags          TEXT NOT NULL DEFAULT '[]',
	profdata         TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_packages_name_version ON packages(name, version);
`

// OpenStore opens (and if needed creates) the package database. The path
// comes from LPKG_DATABASE_URL, defaulting to lpkg.db in the working
// directory.
func OpenStore(path string) (*PackageStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening package database %s: %w", path, err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing package database: %w", err)
	}
	return &PackageStore{db: db}, nil
}

func (s *PackageStore) Close() error {
	return s.db.Close()
}

func encodeList(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeList(raw string) []string {
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

// UpsertPackage inserts or replaces the stored definition for the package's
// name and version.
func (s *PackageStore) UpsertPackage(def pkgs.PackageDefinition) error {
	_, err := s.db.Exec(`
		INSERT INTO packages (
			name, version, source, md5, stage, variant, notes,
			configure_args, build_commands, install_commands, dependencies,
			enable_lto, enable_pgo, cflags, ldflags, profdata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, version) DO UPDATE SET
			source = excluded.source,
			md5 = excluded.md5,
			stage = excluded.stage,
			variant = excluded.variant,
			notes = excluded.notes,
			configure_args = excluded.configure_args,
			build_commands = excluded.build_commands,
			install_commands = excluded.install_commands,
			dependencies = excluded.dependencies,
			enable_lto = excluded.enable_lto,
			enable_pgo = excluded.enable_pgo,
			cflags = excluded.cflags,
			ldflags = excluded.ldflags,
			profdata = excluded.profdata`,
		def.Name, def.Version, def.Source, def.MD5,
		def.Stage, def.Variant, def.Notes,
		encodeList(def.ConfigureArgs), encodeList(def.BuildCommands),
		encodeList(def.InstallCommands), encodeList(def.Dependencies),
		def.Optimizations.EnableLTO, def.Optimizations.EnablePGO,
		encodeList(def.Optimizations.CFlags), encodeList(def.Optimizations.LDFlags),
		def.Optimizations.Profdata)
	if err != nil {
		return fmt.Errorf("storing package %s-%s: %w", def.Name, def.Version, err)
	}
	return nil
}

func scanDefinition(row interface{ Scan(...interface{}) error }) (pkgs.PackageDefinition, error) {
	var def pkgs.PackageDefinition
	var configureArgs, buildCmds, installCmds, deps, cflags, ldflags string
	err := row.Scan(
		&def.Name, &def.Version, &def.Source, &def.MD5,
		&def.Stage, &def.Variant, &def.Notes,
		&configureArgs, &buildCmds, &installCmds, &deps,
		&def.Optimizations.EnableLTO, &def.Optimizations.EnablePGO,
		&cflags, &ldflags, &def.Optimizations.Profdata)
	if err != nil {
		return def, err
	}
	def.ConfigureArgs = decodeList(configureArgs)
	def.BuildCommands = decodeList(buildCmds)
	def.InstallCommands = decodeList(installCmds)
	def.Dependencies = decodeList(deps)
	def.Optimizations.CFlags = decodeList(cflags)
	def.Optimizations.LDFlags = decodeList(ldflags)
	return def, nil
}

const definitionColumns = `name, version, source, md5, stage, variant, notes,
	configure_args, build_commands, install_commands, dependencies,
	enable_lto, enable_pgo, cflags, ldflags, profdata`

// LoadPackages returns every stored definition ordered by name then version.
func (s *PackageStore) LoadPackages() ([]pkgs.PackageDefinition, error) {
	rows, err := s.db.Query(
		`SELECT ` + definitionColumns + ` FROM packages ORDER BY name, version`)
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	defer rows.Close()

	var defs []pkgs.PackageDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("reading package row: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// FindPackage looks up a definition by name, and version when given. With
// the version omitted the newest version wins.
func (s *PackageStore) FindPackage(name, version string) (pkgs.PackageDefinition, error) {
	var row *sql.Row
	if version != "" {
		row = s.db.QueryRow(
			`SELECT `+definitionColumns+` FROM packages WHERE name = ? AND version = ?`,
			name, version)
	} else {
		row = s.db.QueryRow(
			`SELECT `+definitionColumns+` FROM packages WHERE name = ? ORDER BY version DESC LIMIT 1`,
			name)
	}
	def, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return def, fmt.Errorf("%s: %w", name, errPackageNotFound)
	}
	if err != nil {
		return def, fmt.Errorf("looking up package %s: %w", name, err)
	}
	return def, nil
}

// SearchPackages matches names by substring, case-insensitive. The limit is
// clamped to 1..200 with a default of 50.
func (s *PackageStore) SearchPackages(term string, limit int) ([]pkgs.PackageDefinition, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	rows, err := s.db.Query(
		`SELECT `+definitionColumns+` FROM packages
		WHERE name LIKE ? ESCAPE '\' ORDER BY name, version LIMIT ?`,
		"%"+escaped+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("searching packages: %w", err)
	}
	defer rows.Close()

	var defs []pkgs.PackageDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("reading package row: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}
