package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UsagePeriod is the database row holding one tenant's counters for one
// calendar month. Rows are created lazily on first increment and never
// deleted; the unique index on (tenant_id, year, month) makes concurrent
// lazy creation safe.
type UsagePeriod struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	Year                int32
	Month               int32
	AudioTranscriptions int64
	BasicAICalls        int64
	AdvancedAICalls     int64
	CustomAICalls       int64
	APICalls            int64
	ReportsGenerated    int64
	ClientLinksCreated  int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

const usagePeriodColumns = `id, tenant_id, year, month, audio_transcriptions,
	basic_ai_calls, advanced_ai_calls, custom_ai_calls, api_calls,
	reports_generated, client_links_created, created_at, updated_at`

// usageColumnNames whitelists the counter columns addressable by an
// increment. The column name is interpolated into SQL, so it must never
// come from user input without passing through this map.
var usageColumnNames = map[string]bool{
	"audio_transcriptions": true,
	"basic_ai_calls":       true,
	"advanced_ai_calls":    true,
	"custom_ai_calls":      true,
	"api_calls":            true,
	"reports_generated":    true,
	"client_links_created": true,
}

func scanUsagePeriod(row interface{ Scan(...any) error }) (UsagePeriod, error) {
	var p UsagePeriod
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Year, &p.Month,
		&p.AudioTranscriptions, &p.BasicAICalls, &p.AdvancedAICalls,
		&p.CustomAICalls, &p.APICalls, &p.ReportsGenerated,
		&p.ClientLinksCreated, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// GetUsagePeriod fetches the counter row for a tenant and month.
// Returns sql.ErrNoRows when no counter has been written yet; callers treat
// that as an all-zero period.
func (q *Queries) GetUsagePeriod(ctx context.Context, tenantID uuid.UUID, year, month int32) (UsagePeriod, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+usagePeriodColumns+`
		FROM usage_periods
		WHERE tenant_id = $1 AND year = $2 AND month = $3`,
		tenantID, year, month)
	return scanUsagePeriod(row)
}

// UpsertUsageCounter atomically adds amount to one counter column, creating
// the period row if absent. The increment happens inside the database, never
// as read-modify-write in the application, so concurrent increments are
// serialized by the row lock and counts are never lost.
func (q *Queries) UpsertUsageCounter(ctx context.Context, tenantID uuid.UUID, year, month int32, column string, amount int64) error {
	if !usageColumnNames[column] {
		return fmt.Errorf("unknown usage counter column %q", column)
	}
	query := fmt.Sprintf(`
		INSERT INTO usage_periods (id, tenant_id, year, month, %[1]s)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		ON CONFLICT (tenant_id, year, month)
		DO UPDATE SET %[1]s = usage_periods.%[1]s + EXCLUDED.%[1]s,
			updated_at = now()`, column)
	_, err := q.db.ExecContext(ctx, query, tenantID, year, month, amount)
	return err
}

// ListUsagePeriods returns a tenant's usage history, newest first.
func (q *Queries) ListUsagePeriods(ctx context.Context, tenantID uuid.UUID, limit int32) ([]UsagePeriod, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+usagePeriodColumns+`
		FROM usage_periods
		WHERE tenant_id = $1
		ORDER BY year DESC, month DESC
		LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []UsagePeriod
	for rows.Next() {
		p, err := scanUsagePeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}
