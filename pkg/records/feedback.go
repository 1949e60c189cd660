package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// History is one saved version of a banner.
type History struct {
	ID                 string          `json:"id"`
	BannerID           string          `json:"bannerId"`
	Version            int             `json:"version"`
	BackgroundImageURL string          `json:"backgroundImageUrl"`
	TextElements       json.RawMessage `json:"textElements"`
	ChangeNote         string          `json:"changeNote"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// Comment is review feedback, optionally pinned to a canvas position.
type Comment struct {
	ID        string    `json:"id"`
	BannerID  string    `json:"bannerId"`
	Comment   string    `json:"comment"`
	X         *float64  `json:"xPosition,omitempty"`
	Y         *float64  `json:"yPosition,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Store) bannerExists(ctx context.Context, id string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM banners WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: banner %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("records: banner %s: %w", id, err)
	}
	return nil
}

// ListHistory returns the versions of a banner, newest first.
func (s *Store) ListHistory(ctx context.Context, bannerID string) ([]History, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, banner_id, version, background_image_url, text_elements, change_note, created_at
		FROM banner_history WHERE banner_id = ? ORDER BY version DESC`, bannerID)
	if err != nil {
		return nil, fmt.Errorf("records: list history: %w", err)
	}
	defer rows.Close()

	out := []History{}
	for rows.Next() {
		var h History
		var elems string
		var created int64
		if err := rows.Scan(&h.ID, &h.BannerID, &h.Version, &h.BackgroundImageURL, &elems, &h.ChangeNote, &created); err != nil {
			return nil, fmt.Errorf("records: scan history: %w", err)
		}
		h.TextElements = json.RawMessage(elems)
		h.CreatedAt = fromMillis(created)
		out = append(out, h)
	}
	return out, rows.Err()
}

// CreateHistory snapshots the current content of a banner as its next
// version.
func (s *Store) CreateHistory(ctx context.Context, bannerID, note string) (History, error) {
	var h History
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var bg, elems string
		err := tx.QueryRowContext(ctx,
			`SELECT background_image_url, text_elements FROM banners WHERE id = ?`, bannerID).Scan(&bg, &elems)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: banner %s", ErrNotFound, bannerID)
		}
		if err != nil {
			return fmt.Errorf("records: create history: %w", err)
		}
		var version int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM banner_history WHERE banner_id = ?`, bannerID).Scan(&version); err != nil {
			return fmt.Errorf("records: next history version: %w", err)
		}
		created := s.stamp()
		h = History{
			ID:                 newID(),
			BannerID:           bannerID,
			Version:            version,
			BackgroundImageURL: bg,
			TextElements:       json.RawMessage(elems),
			ChangeNote:         note,
			CreatedAt:          fromMillis(created),
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO banner_history
			(id, banner_id, version, background_image_url, text_elements, change_note, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.BannerID, h.Version, h.BackgroundImageURL, elems, h.ChangeNote, created); err != nil {
			return fmt.Errorf("records: create history: %w", err)
		}
		return nil
	})
	return h, err
}

// ListComments returns the comments of a banner, oldest first.
func (s *Store) ListComments(ctx context.Context, bannerID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, banner_id, comment, x_position, y_position, created_at
		FROM banner_comments WHERE banner_id = ? ORDER BY created_at ASC, id ASC`, bannerID)
	if err != nil {
		return nil, fmt.Errorf("records: list comments: %w", err)
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		var c Comment
		var x, y sql.NullFloat64
		var created int64
		if err := rows.Scan(&c.ID, &c.BannerID, &c.Comment, &x, &y, &created); err != nil {
			return nil, fmt.Errorf("records: scan comment: %w", err)
		}
		if x.Valid {
			c.X = &x.Float64
		}
		if y.Valid {
			c.Y = &y.Float64
		}
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateComment adds a comment to an existing banner.
func (s *Store) CreateComment(ctx context.Context, c Comment) (Comment, error) {
	c.Comment = strings.TrimSpace(c.Comment)
	if c.Comment == "" {
		return Comment{}, fmt.Errorf("%w: comment text is required", ErrInvalid)
	}
	if err := s.bannerExists(ctx, c.BannerID); err != nil {
		return Comment{}, err
	}
	c.ID = newID()
	created := s.stamp()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO banner_comments
		(id, banner_id, comment, x_position, y_position, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.BannerID, c.Comment, nullFloat(c.X), nullFloat(c.Y), created); err != nil {
		return Comment{}, fmt.Errorf("records: create comment: %w", err)
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

// DeleteComment removes a comment.
func (s *Store) DeleteComment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM banner_comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("records: delete comment: %w", err)
	}
	return rowsAffected(res, "comment", id)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
