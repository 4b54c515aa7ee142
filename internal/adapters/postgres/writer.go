package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"quotelayout/internal/domain"
	"quotelayout/internal/ports"
)

// ErrVersionConflict aliases the domain sentinel for callers of this package.
var ErrVersionConflict = domain.ErrVersionConflict

const foreignKeyViolation = "23503"

// Writer is the versioned write path for templates and custom layouts. Every
// write bumps the stored version by one; after commit the affected company
// identifiers are published to the invalidator, if any.
type Writer struct {
	db          *DB
	invalidator ports.Invalidator
	logger      *slog.Logger
}

var _ ports.LayoutWriter = (*Writer)(nil)

func NewWriter(db *DB, invalidator ports.Invalidator) *Writer {
	return &Writer{db: db, invalidator: invalidator, logger: slog.Default()}
}

// SaveTemplate creates or replaces a template. An empty templateID creates a
// new template with a generated id.
func (w *Writer) SaveTemplate(ctx context.Context, templateID string, cfg domain.LayoutConfig, isActive bool) (string, int, error) {
	doc, err := encodeConfig(cfg)
	if err != nil {
		return "", 0, err
	}
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		templateID = uuid.NewString()
	}

	var version int
	err = w.db.Pool.QueryRow(ctx, `
        INSERT INTO layout_templates (id, config, is_active)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET
            config = EXCLUDED.config,
            is_active = EXCLUDED.is_active,
            version = layout_templates.version + 1,
            updated_at = now()
        RETURNING version
    `, templateID, doc, isActive).Scan(&version)
	if err != nil {
		return "", 0, err
	}
	w.publishTemplate(ctx, templateID)
	return templateID, version, nil
}

// SaveTemplateIfVersion replaces a template's config only when its stored
// version equals expectedVersion.
func (w *Writer) SaveTemplateIfVersion(ctx context.Context, templateID string, cfg domain.LayoutConfig, expectedVersion int) (int, error) {
	doc, err := encodeConfig(cfg)
	if err != nil {
		return 0, err
	}

	var version int
	err = w.db.inTx(ctx, func(tx pgx.Tx) error {
		var current int
		err := tx.QueryRow(ctx, `SELECT version FROM layout_templates WHERE id = $1 FOR UPDATE`, templateID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return fmt.Errorf("template %q at version %d, expected %d: %w", templateID, current, expectedVersion, ErrVersionConflict)
		}
		return tx.QueryRow(ctx, `
            UPDATE layout_templates SET config = $2, version = version + 1, updated_at = now()
            WHERE id = $1
            RETURNING version
        `, templateID, doc).Scan(&version)
	})
	if err != nil {
		return 0, err
	}
	w.publishTemplate(ctx, templateID)
	return version, nil
}

func (w *Writer) SetTemplateActive(ctx context.Context, templateID string, isActive bool) (int, error) {
	var version int
	err := w.db.Pool.QueryRow(ctx, `
        UPDATE layout_templates SET is_active = $2, version = version + 1, updated_at = now()
        WHERE id = $1
        RETURNING version
    `, templateID, isActive).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	w.publishTemplate(ctx, templateID)
	return version, nil
}

// SaveCustomLayout creates or replaces a company's own layout. The company
// must exist.
func (w *Writer) SaveCustomLayout(ctx context.Context, companyInternalID string, cfg domain.LayoutConfig, isActive bool) (int, error) {
	doc, err := encodeConfig(cfg)
	if err != nil {
		return 0, err
	}

	var version int
	err = w.db.Pool.QueryRow(ctx, `
        INSERT INTO custom_layouts (company_internal_id, config, is_active)
        VALUES ($1, $2, $3)
        ON CONFLICT (company_internal_id) DO UPDATE SET
            config = EXCLUDED.config,
            is_active = EXCLUDED.is_active,
            version = custom_layouts.version + 1,
            updated_at = now()
        RETURNING version
    `, companyInternalID, doc, isActive).Scan(&version)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	w.publishCompany(ctx, companyInternalID)
	return version, nil
}

func (w *Writer) SetCustomLayoutActive(ctx context.Context, companyInternalID string, isActive bool) (int, error) {
	var version int
	err := w.db.Pool.QueryRow(ctx, `
        UPDATE custom_layouts SET is_active = $2, version = version + 1, updated_at = now()
        WHERE company_internal_id = $1
        RETURNING version
    `, companyInternalID, isActive).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	w.publishCompany(ctx, companyInternalID)
	return version, nil
}

func (w *Writer) publishTemplate(ctx context.Context, templateID string) {
	if w.invalidator == nil {
		return
	}
	ids, err := w.db.collectIdentifiers(ctx, `
        SELECT c.internal_id, COALESCE(c.external_tenant_id, '')
        FROM company_branding b
        JOIN companies c ON c.internal_id = b.company_internal_id
        WHERE b.assigned_template_id = $1
    `, templateID)
	if err != nil {
		w.logger.WarnContext(ctx, "Listing template companies for invalidation failed", "template_id", templateID, "error", err)
		return
	}
	w.publish(ctx, ids)
}

func (w *Writer) publishCompany(ctx context.Context, companyInternalID string) {
	if w.invalidator == nil {
		return
	}
	ids, err := w.db.collectIdentifiers(ctx, `
        SELECT internal_id, COALESCE(external_tenant_id, '') FROM companies WHERE internal_id = $1
    `, companyInternalID)
	if err != nil {
		w.logger.WarnContext(ctx, "Loading company for invalidation failed", "company_id", companyInternalID, "error", err)
		ids = []string{companyInternalID}
	}
	w.publish(ctx, ids)
}

// publish is best effort: the write already committed and cache entries
// expire on their own.
func (w *Writer) publish(ctx context.Context, identifiers []string) {
	for _, id := range identifiers {
		if err := w.invalidator.Publish(ctx, id); err != nil {
			w.logger.WarnContext(ctx, "Publishing layout invalidation failed", "identifier", id, "error", err)
		}
	}
}

// collectIdentifiers runs a query returning (internal_id, external_tenant_id)
// pairs and flattens them into the distinct non-empty identifiers.
func (db *DB) collectIdentifiers(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var out []string
	for rows.Next() {
		var internalID, externalID string
		if err := rows.Scan(&internalID, &externalID); err != nil {
			return nil, err
		}
		for _, id := range []string{internalID, externalID} {
			if id != "" && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, rows.Err()
}

// inTx runs fn in a transaction, committing when it returns nil.
func (db *DB) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()
	return fn(tx)
}

func encodeConfig(cfg domain.LayoutConfig) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	if cfg.GlobalStyles == nil {
		cfg.GlobalStyles = map[string]string{}
	}
	if cfg.Sections == nil {
		cfg.Sections = []domain.Section{}
	}
	return json.Marshal(cfg)
}
