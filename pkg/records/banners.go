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

// Banner statuses.
const (
	StatusDraft     = "draft"
	StatusReview    = "review"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
)

var validStatus = map[string]bool{
	StatusDraft:     true,
	StatusReview:    true,
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCompleted: true,
}

// Banner is a saved banner design and its rendered outputs.
type Banner struct {
	ID                 string          `json:"id"`
	ProjectID          string          `json:"projectId"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	BannerType         string          `json:"bannerType"`
	DeviceType         string          `json:"deviceType"`
	Status             string          `json:"status"`
	BackgroundImageURL string          `json:"backgroundImageUrl"`
	LogoURL            string          `json:"logoUrl"`
	LogoURLs           []string        `json:"logoUrls"`
	FinalBannerURL     string          `json:"finalBannerUrl"`
	ThumbnailURL       string          `json:"thumbnailUrl"`
	TextElements       json.RawMessage `json:"textElements"`
	CanvasWidth        int             `json:"canvasWidth"`
	CanvasHeight       int             `json:"canvasHeight"`
	ApprovedBy         string          `json:"approvedBy,omitempty"`
	ApprovedAt         time.Time       `json:"approvedAt,omitzero"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	CommentCount       int             `json:"commentCount"`
}

// BannerFilter narrows ListBanners. Empty fields match everything; Search
// matches title or description case-insensitively.
type BannerFilter struct {
	ProjectID  string
	Status     string
	BannerType string
	DeviceType string
	Search     string
}

const bannerColumns = `b.id, b.project_id, b.title, b.description, b.banner_type, b.device_type, b.status,
	b.background_image_url, b.logo_url, b.logo_urls, b.final_banner_url, b.thumbnail_url, b.text_elements,
	b.canvas_width, b.canvas_height, b.approved_by, b.approved_at, b.created_at, b.updated_at,
	(SELECT COUNT(*) FROM banner_comments c WHERE c.banner_id = b.id)`

func scanBanner(sc scanner) (Banner, error) {
	var b Banner
	var logos, elems string
	var approved, created, updated int64
	err := sc.Scan(&b.ID, &b.ProjectID, &b.Title, &b.Description, &b.BannerType, &b.DeviceType, &b.Status,
		&b.BackgroundImageURL, &b.LogoURL, &logos, &b.FinalBannerURL, &b.ThumbnailURL, &elems,
		&b.CanvasWidth, &b.CanvasHeight, &b.ApprovedBy, &approved, &created, &updated, &b.CommentCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Banner{}, err
	}
	if err != nil {
		return Banner{}, fmt.Errorf("records: scan banner: %w", err)
	}
	if err := json.Unmarshal([]byte(logos), &b.LogoURLs); err != nil {
		return Banner{}, fmt.Errorf("records: banner %s logo urls: %w", b.ID, err)
	}
	b.TextElements = json.RawMessage(elems)
	b.ApprovedAt = fromMillis(approved)
	b.CreatedAt = fromMillis(created)
	b.UpdatedAt = fromMillis(updated)
	return b, nil
}

// ListBanners returns banners matching f, newest first, with their comment
// counts.
func (s *Store) ListBanners(ctx context.Context, f BannerFilter) ([]Banner, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}
	if f.ProjectID != "" {
		add("b.project_id = ?", f.ProjectID)
	}
	if f.Status != "" {
		add("b.status = ?", f.Status)
	}
	if f.BannerType != "" {
		add("b.banner_type = ?", f.BannerType)
	}
	if f.DeviceType != "" {
		add("b.device_type = ?", f.DeviceType)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		where = append(where, "(LOWER(b.title) LIKE ? OR LOWER(b.description) LIKE ?)")
		args = append(args, like, like)
	}

	q := `SELECT ` + bannerColumns + ` FROM banners b`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY b.created_at DESC, b.id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("records: list banners: %w", err)
	}
	defer rows.Close()

	banners := []Banner{}
	for rows.Next() {
		b, err := scanBanner(rows)
		if err != nil {
			return nil, err
		}
		banners = append(banners, b)
	}
	return banners, rows.Err()
}

// GetBanner returns one banner.
func (s *Store) GetBanner(ctx context.Context, id string) (Banner, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bannerColumns+` FROM banners b WHERE b.id = ?`, id)
	b, err := scanBanner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Banner{}, fmt.Errorf("%w: banner %s", ErrNotFound, id)
	}
	return b, err
}

func encodeContent(b Banner) (logos, elems string, err error) {
	if b.LogoURLs == nil {
		b.LogoURLs = []string{}
	}
	lb, err := json.Marshal(b.LogoURLs)
	if err != nil {
		return "", "", err
	}
	elems = "[]"
	if len(b.TextElements) > 0 {
		if !json.Valid(b.TextElements) {
			return "", "", fmt.Errorf("%w: text elements are not valid JSON", ErrInvalid)
		}
		elems = string(b.TextElements)
	}
	return string(lb), elems, nil
}

// CreateBanner inserts a banner under an existing project. Status defaults
// to draft.
func (s *Store) CreateBanner(ctx context.Context, b Banner) (Banner, error) {
	if strings.TrimSpace(b.Title) == "" {
		return Banner{}, fmt.Errorf("%w: banner title is required", ErrInvalid)
	}
	if b.CanvasWidth <= 0 || b.CanvasHeight <= 0 {
		return Banner{}, fmt.Errorf("%w: canvas size %dx%d", ErrInvalid, b.CanvasWidth, b.CanvasHeight)
	}
	if b.Status == "" {
		b.Status = StatusDraft
	}
	if !validStatus[b.Status] {
		return Banner{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, b.Status)
	}
	if _, err := s.GetProject(ctx, b.ProjectID); err != nil {
		return Banner{}, err
	}
	logos, elems, err := encodeContent(b)
	if err != nil {
		return Banner{}, err
	}

	b.ID = newID()
	now := s.stamp()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO banners (
		id, project_id, title, description, banner_type, device_type, status,
		background_image_url, logo_url, logo_urls, final_banner_url, thumbnail_url, text_elements,
		canvas_width, canvas_height, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ProjectID, b.Title, b.Description, b.BannerType, b.DeviceType, b.Status,
		b.BackgroundImageURL, b.LogoURL, logos, b.FinalBannerURL, b.ThumbnailURL, elems,
		b.CanvasWidth, b.CanvasHeight, now, now); err != nil {
		return Banner{}, fmt.Errorf("records: create banner: %w", err)
	}
	return s.GetBanner(ctx, b.ID)
}

// UpdateBannerContent replaces the editable content of a banner: title,
// description, image URLs and text elements.
func (s *Store) UpdateBannerContent(ctx context.Context, b Banner) (Banner, error) {
	logos, elems, err := encodeContent(b)
	if err != nil {
		return Banner{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE banners SET
		title = ?, description = ?, background_image_url = ?, logo_url = ?, logo_urls = ?,
		final_banner_url = ?, thumbnail_url = ?, text_elements = ?, updated_at = ?
		WHERE id = ?`,
		b.Title, b.Description, b.BackgroundImageURL, b.LogoURL, logos,
		b.FinalBannerURL, b.ThumbnailURL, elems, s.stamp(), b.ID)
	if err != nil {
		return Banner{}, fmt.Errorf("records: update banner: %w", err)
	}
	if err := rowsAffected(res, "banner", b.ID); err != nil {
		return Banner{}, err
	}
	return s.GetBanner(ctx, b.ID)
}

// UpdateBannerStatus changes the status. Approving with a non-empty
// approvedBy also records who approved and when.
func (s *Store) UpdateBannerStatus(ctx context.Context, id, status, approvedBy string) (Banner, error) {
	if !validStatus[status] {
		return Banner{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	now := s.stamp()
	var res sql.Result
	var err error
	if status == StatusApproved && approvedBy != "" {
		res, err = s.db.ExecContext(ctx,
			`UPDATE banners SET status = ?, approved_by = ?, approved_at = ?, updated_at = ? WHERE id = ?`,
			status, approvedBy, now, now, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE banners SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
	}
	if err != nil {
		return Banner{}, fmt.Errorf("records: update banner status: %w", err)
	}
	if err := rowsAffected(res, "banner", id); err != nil {
		return Banner{}, err
	}
	return s.GetBanner(ctx, id)
}

// DeleteBanner removes a banner with its history and comments.
func (s *Store) DeleteBanner(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM banners WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: banner %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("records: delete banner: %w", err)
		}
		return deleteBannersWhere(ctx, tx, `id = ?`, id)
	})
}

// deleteBannersWhere removes the banners matching cond along with their
// history and comments.
func deleteBannersWhere(ctx context.Context, tx *sql.Tx, cond string, args ...any) error {
	sub := `SELECT id FROM banners WHERE ` + cond
	for _, q := range []string{
		`DELETE FROM banner_comments WHERE banner_id IN (` + sub + `)`,
		`DELETE FROM banner_history WHERE banner_id IN (` + sub + `)`,
		`DELETE FROM banners WHERE ` + cond,
	} {
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("records: delete banners: %w", err)
		}
	}
	return nil
}
