package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/carelink/medirank/store"
)

func (d *DB) CreateFeedback(ctx context.Context, create *store.FeedbackRecord) (*store.FeedbackRecord, error) {
	stmt := `
		INSERT INTO feedback (user_id, entry_id, domain, display_name, selected_at, user_vector, entry_vector, travel_seconds)
		VALUES (` + placeholders(8) + `)
		RETURNING id
	`
	var userVector, entryVector any
	if len(create.UserVector) > 0 {
		userVector = pgvector.NewVector(create.UserVector)
	}
	if len(create.EntryVector) > 0 {
		entryVector = pgvector.NewVector(create.EntryVector)
	}
	var travelSeconds any
	if create.TravelSeconds != nil {
		travelSeconds = *create.TravelSeconds
	}

	err := d.db.QueryRowContext(ctx, stmt,
		create.UserID,
		create.EntryID,
		create.Domain,
		create.DisplayName,
		create.SelectedAt.Unix(),
		userVector,
		entryVector,
		travelSeconds,
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create feedback record")
	}
	return create, nil
}

func (d *DB) ListFeedback(ctx context.Context, find *store.FindFeedback) ([]*store.FeedbackRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.Domain != nil {
		where, args = append(where, "domain = "+placeholder(len(args)+1)), append(args, *find.Domain)
	}
	if find.Since != nil {
		where, args = append(where, "selected_at >= "+placeholder(len(args)+1)), append(args, find.Since.Unix())
	}

	query := `
		SELECT id, user_id, entry_id, domain, display_name, selected_at, user_vector, entry_vector, travel_seconds
		FROM feedback
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY selected_at DESC
	`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list feedback records")
	}
	defer rows.Close()

	list := []*store.FeedbackRecord{}
	for rows.Next() {
		var record store.FeedbackRecord
		var selectedAt int64
		var userVector, entryVector *pgvector.Vector
		var travelSeconds sql.NullInt64
		if err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.EntryID,
			&record.Domain,
			&record.DisplayName,
			&selectedAt,
			&userVector,
			&entryVector,
			&travelSeconds,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan feedback record")
		}
		record.SelectedAt = time.Unix(selectedAt, 0)
		if userVector != nil {
			record.UserVector = userVector.Slice()
		}
		if entryVector != nil {
			record.EntryVector = entryVector.Slice()
		}
		if travelSeconds.Valid {
			seconds := travelSeconds.Int64
			record.TravelSeconds = &seconds
		}
		list = append(list, &record)
	}

	return list, rows.Err()
}

func (d *DB) DeleteFeedbackBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx, "DELETE FROM feedback WHERE selected_at < $1", before.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired feedback")
	}
	return result.RowsAffected()
}

func (d *DB) ListUsersWithFeedbackSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT DISTINCT user_id FROM feedback WHERE selected_at >= $1 ORDER BY user_id", since.Unix())
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users with feedback")
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, errors.Wrap(err, "failed to scan user id")
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}
