package social

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

// Service implements social content operations.
type Service struct {
	repo       Repository
	publisher  Publisher
	copywriter Copywriter
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires the service. copywriter may be nil.
func NewService(repo Repository, publisher Publisher, copywriter Copywriter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		publisher:  publisher,
		copywriter: copywriter,
		validate:   httpx.NewValidator(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ListPosts returns posts matching filter.
func (s *Service) ListPosts(ctx context.Context, filter PostFilter) ([]Post, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListPosts(ctx, filter)
}

// GetPost returns one post.
func (s *Service) GetPost(ctx context.Context, id uuid.UUID) (Post, error) {
	return s.repo.GetPost(ctx, id)
}

// CreatePost stores a draft, or a scheduled post when a time is given.
func (s *Service) CreatePost(ctx context.Context, input CreatePostInput) (Post, error) {
	if err := httpx.Validate(s.validate, input); err != nil {
		return Post{}, err
	}
	if err := s.checkCampaign(ctx, input.CampaignID); err != nil {
		return Post{}, err
	}
	now := s.now()
	post := Post{
		ID:         uuid.New(),
		CampaignID: input.CampaignID,
		Platform:   input.Platform,
		Content:    input.Content,
		MediaURL:   input.MediaURL,
		Status:     PostDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if input.ScheduledAt != nil {
		if !input.ScheduledAt.After(now) {
			return Post{}, httpx.Invalid("scheduled_at must be in the future")
		}
		at := input.ScheduledAt.UTC()
		post.ScheduledAt = &at
		post.Status = PostScheduled
	}
	if err := s.repo.InsertPost(ctx, post); err != nil {
		return Post{}, err
	}
	return post, nil
}

// UpdatePost patches an unpublished post.
func (s *Service) UpdatePost(ctx context.Context, input UpdatePostInput) (Post, error) {
	if err := httpx.Validate(s.validate, input); err != nil {
		return Post{}, err
	}
	post, err := s.repo.GetPost(ctx, input.ID)
	if err != nil {
		return Post{}, err
	}
	if post.Status == PostPublished {
		return Post{}, ErrAlreadyPublished
	}
	if input.CampaignID != nil {
		if err := s.checkCampaign(ctx, input.CampaignID); err != nil {
			return Post{}, err
		}
		post.CampaignID = input.CampaignID
	}
	if input.Platform != nil {
		post.Platform = *input.Platform
	}
	if input.Content != nil {
		post.Content = *input.Content
	}
	if input.MediaURL != nil {
		post.MediaURL = strings.TrimSpace(*input.MediaURL)
	}
	post.UpdatedAt = s.now()
	if err := s.repo.UpdatePost(ctx, post); err != nil {
		return Post{}, err
	}
	return post, nil
}

// SchedulePost sets a future publish time.
func (s *Service) SchedulePost(ctx context.Context, input SchedulePostInput) (Post, error) {
	if err := httpx.Validate(s.validate, input); err != nil {
		return Post{}, err
	}
	now := s.now()
	if !input.ScheduledAt.After(now) {
		return Post{}, httpx.Invalid("scheduled_at must be in the future")
	}
	post, err := s.repo.GetPost(ctx, input.ID)
	if err != nil {
		return Post{}, err
	}
	if post.Status == PostPublished {
		return Post{}, ErrAlreadyPublished
	}
	at := input.ScheduledAt.UTC()
	post.ScheduledAt = &at
	post.Status = PostScheduled
	post.LastError = ""
	post.UpdatedAt = now
	if err := s.repo.UpdatePost(ctx, post); err != nil {
		return Post{}, err
	}
	return post, nil
}

// PublishPost delivers a post now. Delivery failures are recorded on the post.
func (s *Service) PublishPost(ctx context.Context, id uuid.UUID) (Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if post.Status == PostPublished {
		return Post{}, ErrAlreadyPublished
	}
	externalID, pubErr := s.publisher.Publish(ctx, post)
	if errors.Is(pubErr, httpx.ErrValidation) {
		return Post{}, pubErr
	}

	now := s.now()
	post.UpdatedAt = now
	if pubErr != nil {
		post.Status = PostFailed
		post.LastError = pubErr.Error()
		s.logger.Warn("social publish failed", slog.String("post_id", post.ID.String()),
			slog.String("platform", string(post.Platform)), slog.Any("error", pubErr))
	} else {
		post.Status = PostPublished
		post.PublishedAt = &now
		post.ExternalID = externalID
		post.LastError = ""
	}
	if err := s.repo.UpdatePost(context.WithoutCancel(ctx), post); err != nil {
		return Post{}, err
	}
	if pubErr != nil {
		return post, pubErr
	}
	return post, nil
}

// DeletePost removes a post.
func (s *Service) DeletePost(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeletePost(ctx, id)
}

// GenerateCaption writes a caption for a product.
func (s *Service) GenerateCaption(ctx context.Context, req CaptionRequest) (Caption, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		return Caption{}, err
	}
	if s.copywriter == nil {
		return Caption{}, ErrCopywriterMissing
	}
	text, err := s.copywriter.Caption(ctx, req)
	if err != nil {
		return Caption{}, err
	}
	return Caption{Text: text, Platform: req.Platform}, nil
}

// ListCampaigns returns all campaigns.
func (s *Service) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	return s.repo.ListCampaigns(ctx)
}

// GetCampaign returns one campaign.
func (s *Service) GetCampaign(ctx context.Context, id uuid.UUID) (Campaign, error) {
	return s.repo.GetCampaign(ctx, id)
}

// CreateCampaign stores a draft campaign.
func (s *Service) CreateCampaign(ctx context.Context, input CampaignInput) (Campaign, error) {
	if err := httpx.Validate(s.validate, input); err != nil {
		return Campaign{}, err
	}
	if err := checkWindow(input.StartsAt, input.EndsAt); err != nil {
		return Campaign{}, err
	}
	now := s.now()
	c := Campaign{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Status:      CampaignDraft,
		StartsAt:    input.StartsAt,
		EndsAt:      input.EndsAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertCampaign(ctx, c); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

// UpdateCampaign patches a campaign.
func (s *Service) UpdateCampaign(ctx context.Context, input UpdateCampaignInput) (Campaign, error) {
	if err := httpx.Validate(s.validate, input); err != nil {
		return Campaign{}, err
	}
	c, err := s.repo.GetCampaign(ctx, input.ID)
	if err != nil {
		return Campaign{}, err
	}
	if input.Name != nil {
		c.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		c.Description = *input.Description
	}
	if input.Status != nil {
		c.Status = *input.Status
	}
	if input.StartsAt != nil {
		c.StartsAt = input.StartsAt
	}
	if input.EndsAt != nil {
		c.EndsAt = input.EndsAt
	}
	if err := checkWindow(c.StartsAt, c.EndsAt); err != nil {
		return Campaign{}, err
	}
	c.UpdatedAt = s.now()
	if err := s.repo.UpdateCampaign(ctx, c); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

// DeleteCampaign removes a campaign.
func (s *Service) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteCampaign(ctx, id)
}

// ListContacts returns contacts.
func (s *Service) ListContacts(ctx context.Context, limit int) ([]Contact, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.repo.ListContacts(ctx, limit)
}

// ImportContacts inserts each contact independently; one bad row never
// aborts the batch.
func (s *Service) ImportContacts(ctx context.Context, input ImportContactsInput) (ImportContactsResult, error) {
	if err := httpx.Validate(s.validate, input); err != nil {
		return ImportContactsResult{}, err
	}
	result := ImportContactsResult{Total: len(input.Contacts), Results: make([]ContactResult, 0, len(input.Contacts))}
	seen := make(map[string]struct{}, len(input.Contacts))
	for i, in := range input.Contacts {
		in.Email = strings.ToLower(strings.TrimSpace(in.Email))
		res := ContactResult{Index: i, Email: in.Email}
		if err := httpx.Validate(s.validate, in); err != nil {
			res.Error = err.Error()
			result.Failed++
			result.Results = append(result.Results, res)
			continue
		}
		if _, dup := seen[in.Email]; dup {
			res.Duplicate = true
			result.Duplicates++
			result.Results = append(result.Results, res)
			continue
		}
		seen[in.Email] = struct{}{}

		err := s.repo.InsertContact(ctx, Contact{
			ID:        uuid.New(),
			Email:     in.Email,
			Name:      strings.TrimSpace(in.Name),
			Platform:  in.Platform,
			Handle:    strings.TrimPrefix(strings.TrimSpace(in.Handle), "@"),
			Tags:      in.Tags,
			CreatedAt: s.now(),
		})
		switch {
		case err == nil:
			res.Imported = true
			result.Imported++
		case errors.Is(err, ErrDuplicateContact):
			res.Duplicate = true
			result.Duplicates++
		default:
			s.logger.Warn("contact import failed", slog.Int("index", i), slog.Any("error", err))
			res.Error = err.Error()
			result.Failed++
		}
		result.Results = append(result.Results, res)
	}
	return result, nil
}

// DeleteContact removes a contact.
func (s *Service) DeleteContact(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteContact(ctx, id)
}

// Stats summarises social content.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) checkCampaign(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	_, err := s.repo.GetCampaign(ctx, *id)
	if errors.Is(err, ErrCampaignNotFound) {
		return httpx.Invalid("campaign %s does not exist", id)
	}
	return err
}

func checkWindow(starts, ends *time.Time) error {
	if starts != nil && ends != nil && ends.Before(*starts) {
		return httpx.Invalid("ends_at must not precede starts_at")
	}
	return nil
}
