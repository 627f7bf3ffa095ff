package social

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropship-ops/opsdash/internal/platform/db"
)

// Repository persists social content.
type Repository interface {
	ListPosts(ctx context.Context, filter PostFilter) ([]Post, error)
	GetPost(ctx context.Context, id uuid.UUID) (Post, error)
	InsertPost(ctx context.Context, post Post) error
	UpdatePost(ctx context.Context, post Post) error
	DeletePost(ctx context.Context, id uuid.UUID) error

	ListCampaigns(ctx context.Context) ([]Campaign, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (Campaign, error)
	InsertCampaign(ctx context.Context, c Campaign) error
	UpdateCampaign(ctx context.Context, c Campaign) error
	DeleteCampaign(ctx context.Context, id uuid.UUID) error

	ListContacts(ctx context.Context, limit int) ([]Contact, error)
	InsertContact(ctx context.Context, c Contact) error
	DeleteContact(ctx context.Context, id uuid.UUID) error

	Stats(ctx context.Context) (Stats, error)
}

// PgRepository implements Repository on Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const postColumns = `id, campaign_id, platform, content, media_url, status, scheduled_at, published_at, external_id, last_error, created_at, updated_at`

func scanPost(row pgx.Row) (Post, error) {
	var (
		p                Post
		platform, status string
	)
	err := row.Scan(&p.ID, &p.CampaignID, &platform, &p.Content, &p.MediaURL, &status, &p.ScheduledAt,
		&p.PublishedAt, &p.ExternalID, &p.LastError, &p.CreatedAt, &p.UpdatedAt)
	p.Platform = Platform(platform)
	p.Status = PostStatus(status)
	return p, err
}

// ListPosts returns posts, newest first.
func (r *PgRepository) ListPosts(ctx context.Context, f PostFilter) ([]Post, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+postColumns+` FROM social_posts
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR platform = $2) AND ($3::uuid IS NULL OR campaign_id = $3)
		ORDER BY created_at DESC LIMIT $4`,
		string(f.Status), string(f.Platform), f.CampaignID, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("social: list posts: %w", err)
	}
	defer rows.Close()
	posts := make([]Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("social: scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetPost loads one post.
func (r *PgRepository) GetPost(ctx context.Context, id uuid.UUID) (Post, error) {
	p, err := scanPost(r.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM social_posts WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Post{}, ErrPostNotFound
		}
		return Post{}, fmt.Errorf("social: get post: %w", err)
	}
	return p, nil
}

// InsertPost stores a new post.
func (r *PgRepository) InsertPost(ctx context.Context, p Post) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO social_posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.CampaignID, string(p.Platform), p.Content, p.MediaURL, string(p.Status), p.ScheduledAt,
		p.PublishedAt, p.ExternalID, p.LastError, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("social: insert post: %w", err)
	}
	return nil
}

// UpdatePost overwrites a post.
func (r *PgRepository) UpdatePost(ctx context.Context, p Post) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE social_posts SET campaign_id = $2, platform = $3, content = $4, media_url = $5, status = $6,
			scheduled_at = $7, published_at = $8, external_id = $9, last_error = $10, updated_at = $11
		WHERE id = $1`,
		p.ID, p.CampaignID, string(p.Platform), p.Content, p.MediaURL, string(p.Status), p.ScheduledAt,
		p.PublishedAt, p.ExternalID, p.LastError, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("social: update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

// DeletePost removes a post.
func (r *PgRepository) DeletePost(ctx context.Context, id uuid.UUID) error {
	return r.delete(ctx, `DELETE FROM social_posts WHERE id = $1`, id, ErrPostNotFound)
}

const campaignColumns = `c.id, c.name, c.description, c.status, c.starts_at, c.ends_at, c.created_at, c.updated_at,
	(SELECT count(*) FROM social_posts p WHERE p.campaign_id = c.id)`

func scanCampaign(row pgx.Row) (Campaign, error) {
	var (
		c      Campaign
		status string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Description, &status, &c.StartsAt, &c.EndsAt, &c.CreatedAt, &c.UpdatedAt, &c.PostCount)
	c.Status = CampaignStatus(status)
	return c, err
}

// ListCampaigns returns campaigns, newest first.
func (r *PgRepository) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+campaignColumns+` FROM social_campaigns c ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("social: list campaigns: %w", err)
	}
	defer rows.Close()
	out := make([]Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("social: scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCampaign loads one campaign.
func (r *PgRepository) GetCampaign(ctx context.Context, id uuid.UUID) (Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM social_campaigns c WHERE c.id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Campaign{}, ErrCampaignNotFound
		}
		return Campaign{}, fmt.Errorf("social: get campaign: %w", err)
	}
	return c, nil
}

// InsertCampaign stores a campaign.
func (r *PgRepository) InsertCampaign(ctx context.Context, c Campaign) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO social_campaigns (id, name, description, status, starts_at, ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.Description, string(c.Status), c.StartsAt, c.EndsAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("social: insert campaign: %w", err)
	}
	return nil
}

// UpdateCampaign overwrites a campaign.
func (r *PgRepository) UpdateCampaign(ctx context.Context, c Campaign) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE social_campaigns SET name = $2, description = $3, status = $4, starts_at = $5, ends_at = $6, updated_at = $7
		WHERE id = $1`,
		c.ID, c.Name, c.Description, string(c.Status), c.StartsAt, c.EndsAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("social: update campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// DeleteCampaign removes a campaign; its posts are detached by the foreign key.
func (r *PgRepository) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	return r.delete(ctx, `DELETE FROM social_campaigns WHERE id = $1`, id, ErrCampaignNotFound)
}

// ListContacts returns contacts, newest first.
func (r *PgRepository) ListContacts(ctx context.Context, limit int) ([]Contact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, email, name, platform, handle, tags, created_at
		FROM social_contacts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("social: list contacts: %w", err)
	}
	defer rows.Close()
	out := make([]Contact, 0)
	for rows.Next() {
		var (
			c        Contact
			platform string
		)
		if err := rows.Scan(&c.ID, &c.Email, &c.Name, &platform, &c.Handle, &c.Tags, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("social: scan contact: %w", err)
		}
		c.Platform = Platform(platform)
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertContact stores a contact; a duplicate email yields ErrDuplicateContact.
func (r *PgRepository) InsertContact(ctx context.Context, c Contact) error {
	if c.Tags == nil {
		c.Tags = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO social_contacts (id, email, name, platform, handle, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Email, c.Name, string(c.Platform), c.Handle, c.Tags, c.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateContact
		}
		return fmt.Errorf("social: insert contact: %w", err)
	}
	return nil
}

// DeleteContact removes a contact.
func (r *PgRepository) DeleteContact(ctx context.Context, id uuid.UUID) error {
	return r.delete(ctx, `DELETE FROM social_contacts WHERE id = $1`, id, ErrContactNotFound)
}

func (r *PgRepository) delete(ctx context.Context, sql string, id uuid.UUID, notFound error) error {
	tag, err := r.pool.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("social: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

// Stats counts content by status.
func (r *PgRepository) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Posts: map[PostStatus]int{}}
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM social_posts GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("social: post stats: %w", err)
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return Stats{}, fmt.Errorf("social: scan stats: %w", err)
		}
		stats.Posts[PostStatus(status)] = n
		stats.TotalPosts += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	err = r.pool.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM social_campaigns),
		       (SELECT count(*) FROM social_campaigns WHERE status = 'active'),
		       (SELECT count(*) FROM social_contacts)`).
		Scan(&stats.Campaigns, &stats.ActiveCampaigns, &stats.Contacts)
	if err != nil {
		return Stats{}, fmt.Errorf("social: counts: %w", err)
	}
	return stats, nil
}

