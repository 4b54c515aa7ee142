package postgres

import (
	"context"
	"time"

	"quotelayout/internal/ports"
)

var _ ports.ChangeFeed = (*DB)(nil)

// ChangedSince lists companies whose record, branding, custom layout or
// assigned template was written after since, oldest change first.
func (db *DB) ChangedSince(ctx context.Context, since time.Time) ([]ports.Change, error) {
	rows, err := db.Pool.Query(ctx, `
        WITH changed AS (
            SELECT internal_id AS company_id, updated_at FROM companies WHERE updated_at > $1
            UNION ALL
            SELECT company_internal_id, updated_at FROM company_branding WHERE updated_at > $1
            UNION ALL
            SELECT company_internal_id, updated_at FROM custom_layouts WHERE updated_at > $1
            UNION ALL
            SELECT b.company_internal_id, t.updated_at
            FROM layout_templates t
            JOIN company_branding b ON b.assigned_template_id = t.id
            WHERE t.updated_at > $1
        )
        SELECT c.internal_id, COALESCE(c.external_tenant_id, ''), max(ch.updated_at) AS changed_at
        FROM changed ch
        JOIN companies c ON c.internal_id = ch.company_id
        GROUP BY c.internal_id, c.external_tenant_id
        ORDER BY changed_at
    `, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.Change
	for rows.Next() {
		var (
			internalID, externalID string
			changedAt              time.Time
		)
		if err := rows.Scan(&internalID, &externalID, &changedAt); err != nil {
			return nil, err
		}
		ids := []string{internalID}
		if externalID != "" && externalID != internalID {
			ids = append(ids, externalID)
		}
		out = append(out, ports.Change{Identifiers: ids, ChangedAt: changedAt})
	}
	return out, rows.Err()
}
