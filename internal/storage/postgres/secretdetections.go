package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type secretDetectionRow struct {
	ID             string    `db:"id"`
	Pattern        string    `db:"pattern"`
	MaskedPrefix   string    `db:"masked_prefix"`
	Source         string    `db:"source"`
	JSONPath       string    `db:"json_path"`
	Severity       string    `db:"severity"`
	Resolved       bool      `db:"resolved"`
	ResolutionNote string    `db:"resolution_note"`
	CreatedAt      time.Time `db:"created_at"`
}

// SecretDetectionStore persists Secret Scanner findings (spec §4.5).
type SecretDetectionStore struct{ *BaseStore }

func NewSecretDetectionStore(b *BaseStore) *SecretDetectionStore { return &SecretDetectionStore{b} }

func (s *SecretDetectionStore) Create(ctx context.Context, d model.KeyExposureDetection) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO key_exposure_detections (id, pattern, masked_prefix, source, json_path, severity, resolved, resolution_note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.Pattern, d.MaskedPrefix, d.Source, d.JSONPath, d.Severity, d.Resolved, d.ResolutionNote, d.CreatedAt)
	if err != nil {
		return errs.Internal("insert secret detection", err)
	}
	return nil
}

func (s *SecretDetectionStore) List(ctx context.Context, resolved *bool) ([]model.KeyExposureDetection, error) {
	var rows []secretDetectionRow
	var err error
	if resolved == nil {
		err = s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, pattern, masked_prefix, source, json_path, severity, resolved, resolution_note, created_at FROM key_exposure_detections ORDER BY created_at DESC`)
	} else {
		err = s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, pattern, masked_prefix, source, json_path, severity, resolved, resolution_note, created_at FROM key_exposure_detections WHERE resolved = $1 ORDER BY created_at DESC`, *resolved)
	}
	if err != nil {
		return nil, errs.Internal("list secret detections", err)
	}
	out := make([]model.KeyExposureDetection, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.KeyExposureDetection{
			ID: r.ID, Pattern: r.Pattern, MaskedPrefix: r.MaskedPrefix, Source: r.Source,
			JSONPath: r.JSONPath, Severity: r.Severity, Resolved: r.Resolved,
			ResolutionNote: r.ResolutionNote, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (s *SecretDetectionStore) Resolve(ctx context.Context, id, note string) error {
	res, err := s.Querier(ctx).ExecContext(ctx, `UPDATE key_exposure_detections SET resolved = true, resolution_note = $2 WHERE id = $1`, id, note)
	if err != nil {
		return errs.Internal("resolve secret detection", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("key_exposure_detection", id)
	}
	return nil
}
