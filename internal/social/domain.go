// Package social manages social media posts, campaigns and contacts, and
// publishes posts to per-platform webhooks.
package social

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

// CodeUnknownAction is returned for an unsupported (method, action) pair.
const CodeUnknownAction = "SOCIAL_001"

var (
	ErrPostNotFound     = fmt.Errorf("post %w", httpx.ErrNotFound)
	ErrCampaignNotFound = fmt.Errorf("campaign %w", httpx.ErrNotFound)
	ErrContactNotFound  = fmt.Errorf("contact %w", httpx.ErrNotFound)
	ErrDuplicateContact = fmt.Errorf("contact email already exists: %w", httpx.ErrConflict)
	ErrAlreadyPublished = fmt.Errorf("post already published: %w", httpx.ErrConflict)
	// ErrCopywriterMissing is returned when no AI key is configured.
	ErrCopywriterMissing = errors.New("caption generation not configured: set GENAI_API_KEY")
)

// Platform is a social network.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
	PlatformPinterest Platform = "pinterest"
)

// PostStatus is the lifecycle of a post.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostScheduled PostStatus = "scheduled"
	PostPublished PostStatus = "published"
	PostFailed    PostStatus = "failed"
)

// CampaignStatus is the lifecycle of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Post is a piece of content for one platform.
type Post struct {
	ID          uuid.UUID  `json:"id"`
	CampaignID  *uuid.UUID `json:"campaign_id,omitempty"`
	Platform    Platform   `json:"platform"`
	Content     string     `json:"content"`
	MediaURL    string     `json:"media_url,omitempty"`
	Status      PostStatus `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	ExternalID  string     `json:"external_id,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Campaign groups posts.
type Campaign struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      CampaignStatus `json:"status"`
	StartsAt    *time.Time     `json:"starts_at,omitempty"`
	EndsAt      *time.Time     `json:"ends_at,omitempty"`
	PostCount   int            `json:"post_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Contact is an audience member or influencer.
type Contact struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Platform  Platform  `json:"platform,omitempty"`
	Handle    string    `json:"handle,omitempty"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarises social content.
type Stats struct {
	Posts           map[PostStatus]int `json:"posts"`
	TotalPosts      int                `json:"total_posts"`
	Campaigns       int                `json:"campaigns"`
	ActiveCampaigns int                `json:"active_campaigns"`
	Contacts        int                `json:"contacts"`
}

// PostFilter narrows post listings.
type PostFilter struct {
	Status     PostStatus
	Platform   Platform
	CampaignID *uuid.UUID
	Limit      int
}

// CreatePostInput creates a draft or scheduled post.
type CreatePostInput struct {
	CampaignID  *uuid.UUID `json:"campaign_id"`
	Platform    Platform   `json:"platform" validate:"required,oneof=facebook instagram twitter linkedin tiktok pinterest"`
	Content     string     `json:"content" validate:"required,max=5000"`
	MediaURL    string     `json:"media_url" validate:"omitempty,url"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// UpdatePostInput patches a post that is not yet published.
type UpdatePostInput struct {
	ID         uuid.UUID  `json:"id" validate:"required"`
	CampaignID *uuid.UUID `json:"campaign_id"`
	Platform   *Platform  `json:"platform" validate:"omitempty,oneof=facebook instagram twitter linkedin tiktok pinterest"`
	Content    *string    `json:"content" validate:"omitempty,min=1,max=5000"`
	MediaURL   *string    `json:"media_url" validate:"omitempty"`
}

// SchedulePostInput sets the publish time of a post.
type SchedulePostInput struct {
	ID          uuid.UUID `json:"id" validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// IDInput identifies a resource in a request body.
type IDInput struct {
	ID uuid.UUID `json:"id" validate:"required"`
}

// CaptionRequest asks for AI generated copy.
type CaptionRequest struct {
	ProductTitle string   `json:"product_title" validate:"required,max=500"`
	Notes        string   `json:"notes" validate:"max=2000"`
	Tone         string   `json:"tone" validate:"omitempty,max=50"`
	Platform     Platform `json:"platform" validate:"omitempty,oneof=facebook instagram twitter linkedin tiktok pinterest"`
}

// Caption is generated copy.
type Caption struct {
	Text     string   `json:"text"`
	Platform Platform `json:"platform,omitempty"`
}

// CampaignInput creates a campaign.
type CampaignInput struct {
	Name        string     `json:"name" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}

// UpdateCampaignInput patches a campaign.
type UpdateCampaignInput struct {
	ID          uuid.UUID       `json:"id" validate:"required"`
	Name        *string         `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string         `json:"description" validate:"omitempty,max=2000"`
	Status      *CampaignStatus `json:"status" validate:"omitempty,oneof=draft active paused completed"`
	StartsAt    *time.Time      `json:"starts_at"`
	EndsAt      *time.Time      `json:"ends_at"`
}

// ContactInput is one contact to import.
type ContactInput struct {
	Email    string   `json:"email" validate:"required,email"`
	Name     string   `json:"name" validate:"max=200"`
	Platform Platform `json:"platform" validate:"omitempty,oneof=facebook instagram twitter linkedin tiktok pinterest"`
	Handle   string   `json:"handle" validate:"max=100"`
	Tags     []string `json:"tags" validate:"max=20,dive,max=50"`
}

// ImportContactsInput is the import_contacts body.
type ImportContactsInput struct {
	Contacts []ContactInput `json:"contacts" validate:"required,min=1,max=1000"`
}

// ContactResult is the per-contact outcome of an import.
type ContactResult struct {
	Index     int    `json:"index"`
	Email     string `json:"email"`
	Imported  bool   `json:"imported"`
	Duplicate bool   `json:"duplicate"`
	Error     string `json:"error,omitempty"`
}

// ImportContactsResult summarises an import.
type ImportContactsResult struct {
	Total      int             `json:"total"`
	Imported   int             `json:"imported"`
	Duplicates int             `json:"duplicates"`
	Failed     int             `json:"failed"`
	Results    []ContactResult `json:"results"`
}
