package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Feedback is the database row for one audio feedback message.
type Feedback struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ClientName  sql.NullString
	ClientEmail sql.NullString
	ClientPhone sql.NullString
	AudioKey    string
	ContentType string
	Status      string
	Transcript  sql.NullString
	Sentiment   sql.NullString
	Rating      sql.NullInt32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const feedbackColumns = `id, tenant_id, client_name, client_email, client_phone,
	audio_key, content_type, status, transcript, sentiment, rating, created_at, updated_at`

func scanFeedback(row interface{ Scan(...any) error }) (Feedback, error) {
	var f Feedback
	err := row.Scan(
		&f.ID, &f.TenantID, &f.ClientName, &f.ClientEmail, &f.ClientPhone,
		&f.AudioKey, &f.ContentType, &f.Status, &f.Transcript, &f.Sentiment,
		&f.Rating, &f.CreatedAt, &f.UpdatedAt,
	)
	return f, err
}

// CreateFeedbackParams holds the fields known at intake time.
type CreateFeedbackParams struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ClientName  sql.NullString
	ClientEmail sql.NullString
	ClientPhone sql.NullString
	AudioKey    string
	ContentType string
	Rating      sql.NullInt32
}

// CreateFeedback inserts a pending feedback row.
func (q *Queries) CreateFeedback(ctx context.Context, arg CreateFeedbackParams) (Feedback, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO feedback (id, tenant_id, client_name, client_email, client_phone,
			audio_key, content_type, status, rating)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
		RETURNING `+feedbackColumns,
		arg.ID, arg.TenantID, arg.ClientName, arg.ClientEmail, arg.ClientPhone,
		arg.AudioKey, arg.ContentType, arg.Rating)
	return scanFeedback(row)
}

// GetFeedback fetches a feedback row by ID.
func (q *Queries) GetFeedback(ctx context.Context, id uuid.UUID) (Feedback, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE id = $1`, id)
	return scanFeedback(row)
}

// SetFeedbackStatus transitions a feedback's processing state.
func (q *Queries) SetFeedbackStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE feedback SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	return err
}

// CompleteFeedback stores the pipeline results and marks the row completed.
func (q *Queries) CompleteFeedback(ctx context.Context, id uuid.UUID, transcript, sentiment string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE feedback
		SET status = 'completed', transcript = $2, sentiment = $3, updated_at = now()
		WHERE id = $1`,
		id, transcript, sentiment)
	return err
}

// ListFeedbackByTenant returns a tenant's feedback, newest first.
func (q *Queries) ListFeedbackByTenant(ctx context.Context, tenantID uuid.UUID, limit int32) ([]Feedback, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+feedbackColumns+`
		FROM feedback
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}
