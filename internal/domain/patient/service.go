package patient

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// ArtifactStore receives CSV snapshots produced after each successful save.
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Service runs the load → locate/merge/create → save → export flow.
type Service struct {
	repo      Repository
	artifacts ArtifactStore
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithArtifactStore uploads every post-save CSV snapshot to store.
func WithArtifactStore(store ArtifactStore) Option {
	return func(s *Service) { s.artifacts = store }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the wall clock used for Edited_At and export names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, logger: zerolog.Nop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SearchResult is the set of rows matching a (name, id) query, with the
// columns the editing grid should show.
type SearchResult struct {
	Columns []string `json:"columns"`
	Matches []Match  `json:"matches"`
}

// SaveRequest carries grid edits for the rows matched by (Name, ID).
type SaveRequest struct {
	Name   string  `json:"name"`
	ID     int64   `json:"id"`
	Editor string  `json:"editor"`
	Edits  EditSet `json:"edits"`
}

// SaveResult describes a completed save or add.
type SaveResult struct {
	Columns     []string `json:"columns"`
	Matches     []Match  `json:"matches,omitempty"`
	Record      Record   `json:"record,omitempty"`
	Filename    string   `json:"filename"`
	CSV         []byte   `json:"-"`
	ArtifactURL string   `json:"artifact_url,omitempty"`
}

func (s *Service) Search(ctx context.Context, name string, id int64) (*SearchResult, error) {
	t, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	matches := matchesOf(t, FindAll(t, name, id))
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	return &SearchResult{Columns: gridColumns(t), Matches: matches}, nil
}

// SaveEdits reloads the table, re-locates the rows for (Name, ID), applies
// each grid row's edits to the row it addresses and replaces the stored
// table. Grid rows are resolved against the fresh snapshot rather than a
// position remembered from the earlier search.
func (s *Service) SaveEdits(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	t, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	positions := FindAll(t, req.Name, req.ID)
	if len(positions) == 0 {
		return nil, ErrNotFound
	}

	now := s.now()
	gridRows := make([]int, 0, len(req.Edits))
	for row := range req.Edits {
		gridRows = append(gridRows, row)
	}
	sort.Ints(gridRows)
	for _, row := range gridRows {
		if row < 0 || row >= len(positions) {
			return nil, fmt.Errorf("%w: grid row %d of %d", ErrPositionOutOfRange, row, len(positions))
		}
		if err := ApplyEdits(t, positions[row], req.Edits[row], req.Editor, now); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Save(ctx, t); err != nil {
		s.logger.Error().Err(err).Str("editor", req.Editor).Msg("saving patient edits failed")
		return nil, err
	}
	s.logger.Info().
		Str("editor", req.Editor).
		Int64("patient_id", req.ID).
		Int("edited_rows", len(gridRows)).
		Int("table_rows", t.Len()).
		Msg("patient edits saved")

	res := &SaveResult{Columns: gridColumns(t), Matches: matchesOf(t, positions)}
	if err := s.export(ctx, t, now, res); err != nil {
		return nil, err
	}
	return res, nil
}

// AddPatient appends a new record with the next identifier and replaces the
// stored table.
func (s *Service) AddPatient(ctx context.Context, fields Record) (*SaveResult, error) {
	t, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	rec := Create(t, fields)

	if err := s.repo.Save(ctx, t); err != nil {
		s.logger.Error().Err(err).Msg("saving new patient failed")
		return nil, err
	}
	idCol, _ := t.IDColumn()
	s.logger.Info().
		Interface("patient_id", rec[idCol]).
		Int("table_rows", t.Len()).
		Msg("patient added")

	res := &SaveResult{Columns: t.Columns, Record: rec}
	if err := s.export(ctx, t, s.now(), res); err != nil {
		return nil, err
	}
	return res, nil
}

// ExportCSV returns the current table as CSV with a timestamped filename.
func (s *Service) ExportCSV(ctx context.Context) (string, []byte, error) {
	t, err := s.repo.Load(ctx)
	if err != nil {
		return "", nil, err
	}
	data, err := EncodeCSV(t)
	if err != nil {
		return "", nil, err
	}
	return ExportFilename(s.now()), data, nil
}

// List returns one page of rows in table order plus the total row count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]string, []Record, int, error) {
	t, err := s.repo.Load(ctx)
	if err != nil {
		return nil, nil, 0, err
	}
	total := t.Len()
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return t.Columns, t.Rows[offset:end], total, nil
}

// export renders the post-save CSV and, when configured, uploads it. An
// upload failure is logged; the save itself has already succeeded.
func (s *Service) export(ctx context.Context, t *Table, now time.Time, res *SaveResult) error {
	data, err := EncodeCSV(t)
	if err != nil {
		return err
	}
	res.Filename = ExportFilename(now)
	res.CSV = data

	if s.artifacts == nil {
		return nil
	}
	url, err := s.artifacts.Put(ctx, res.Filename, "text/csv", data)
	if err != nil {
		s.logger.Warn().Err(err).Str("filename", res.Filename).Msg("uploading csv snapshot failed")
		return nil
	}
	res.ArtifactURL = url
	return nil
}

func matchesOf(t *Table, positions []int) []Match {
	out := make([]Match, 0, len(positions))
	for _, p := range positions {
		out = append(out, Match{Position: p, Record: t.Rows[p].Clone()})
	}
	return out
}

// gridColumns is the table schema plus Edited_By, which the editing grid
// always shows even before any row has been edited.
func gridColumns(t *Table) []string {
	cols := append([]string(nil), t.Columns...)
	for _, c := range cols {
		if c == ColEditedBy {
			return cols
		}
	}
	return append(cols, ColEditedBy)
}
