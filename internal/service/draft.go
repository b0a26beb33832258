package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mdobak/go-xerrors"
	"github.com/paulmach/orb/geojson"
)

// ErrNoDraft is returned when no draft exists for a project and date.
var ErrNoDraft = errors.New("no draft")

const createDrafts = `CREATE TABLE IF NOT EXISTS drafts (
	project_id   INTEGER NOT NULL,
	basemap_date VARCHAR NOT NULL,
	polygons     VARCHAR NOT NULL,
	updated_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (project_id, basemap_date)
)`

// DraftStore keeps the latest unsaved polygons per project and basemap
// month in DuckDB.
type DraftStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewDraftStore creates the drafts table when missing.
func NewDraftStore(ctx context.Context, db *sql.DB) (*DraftStore, error) {
	if _, err := db.ExecContext(ctx, createDrafts); err != nil {
		return nil, xerrors.Newf("create drafts table: %w", err)
	}
	return &DraftStore{db: db, now: time.Now}, nil
}

// Put stores fc as the draft of (projectID, date), replacing an older one.
func (s *DraftStore) Put(ctx context.Context, projectID int, date string, fc *geojson.FeatureCollection) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return xerrors.New(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO drafts (project_id, basemap_date, polygons, updated_at) VALUES (?, ?, ?, ?)`,
		projectID, date, string(data), s.now().UTC())
	if err != nil {
		return xerrors.Newf("store draft %d/%s: %w", projectID, date, err)
	}
	return nil
}

// Get returns the draft of (projectID, date) or ErrNoDraft.
func (s *DraftStore) Get(ctx context.Context, projectID int, date string) (*Draft, error) {
	var (
		raw string
		d   = Draft{ProjectID: projectID, BasemapDate: date}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT polygons, updated_at FROM drafts WHERE project_id = ? AND basemap_date = ?`,
		projectID, date).Scan(&raw, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoDraft
	}
	if err != nil {
		return nil, xerrors.Newf("load draft %d/%s: %w", projectID, date, err)
	}
	d.Polygons, err = geojson.UnmarshalFeatureCollection([]byte(raw))
	if err != nil {
		return nil, xerrors.Newf("decode draft %d/%s: %w", projectID, date, err)
	}
	return &d, nil
}

// Delete drops the draft of (projectID, date). A missing draft is not an
// error.
func (s *DraftStore) Delete(ctx context.Context, projectID int, date string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM drafts WHERE project_id = ? AND basemap_date = ?`, projectID, date)
	if err != nil {
		return xerrors.Newf("delete draft %d/%s: %w", projectID, date, err)
	}
	return nil
}

// Dates lists the basemap months with a draft for projectID, oldest first.
func (s *DraftStore) Dates(ctx context.Context, projectID int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT basemap_date FROM drafts WHERE project_id = ? ORDER BY basemap_date`, projectID)
	if err != nil {
		return nil, xerrors.Newf("list drafts %d: %w", projectID, err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, xerrors.New(err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
