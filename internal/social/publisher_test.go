package social

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

func TestWebhookPublisher(t *testing.T) {
	transport := httpmock.NewMockTransport()
	campaign := uuid.New()
	post := Post{ID: uuid.New(), CampaignID: &campaign, Platform: PlatformFacebook, Content: "Spring sale", MediaURL: "https://cdn.example.com/a.jpg"}

	transport.RegisterResponder(http.MethodPost, "https://hooks.example.com/fb", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		var got map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		assert.Equal(t, "Spring sale", got["content"])
		assert.Equal(t, "facebook", got["platform"])
		assert.Equal(t, campaign.String(), got["campaign_id"])
		return httpmock.NewStringResponse(http.StatusOK, `{"id":"fb_123"}`), nil
	})
	transport.RegisterResponder(http.MethodPost, "https://hooks.example.com/ig",
		httpmock.NewStringResponder(http.StatusAccepted, ""))
	transport.RegisterResponder(http.MethodPost, "https://hooks.example.com/x",
		httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))

	pub := NewWebhookPublisher(map[string]string{
		"facebook":  "https://hooks.example.com/fb",
		"instagram": "https://hooks.example.com/ig",
		"twitter":   "https://hooks.example.com/x",
		"linkedin":  "",
	}, time.Second).WithHTTPClient(&http.Client{Transport: transport})
	ctx := context.Background()

	id, err := pub.Publish(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, "fb_123", id)

	post.Platform = PlatformInstagram
	id, err = pub.Publish(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, post.ID.String(), id)

	post.Platform = PlatformTwitter
	_, err = pub.Publish(ctx, post)
	require.ErrorIs(t, err, httpx.ErrUpstream)
	assert.Contains(t, err.Error(), "502")

	post.Platform = PlatformLinkedIn
	_, err = pub.Publish(ctx, post)
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Equal(t, http.StatusBadRequest, httpx.StatusFor(err))

	assert.Equal(t, 3, transport.GetTotalCallCount())
}

func TestGenAICopywriter(t *testing.T) {
	_, err := NewGenAICopywriter(context.Background(), GenAIConfig{})
	require.ErrorIs(t, err, ErrCopywriterMissing)

	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder(http.MethodPost, regexp.MustCompile(`gemini-2\.0-flash:generateContent`),
		func(req *http.Request) (*http.Response, error) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			raw, _ := json.Marshal(body["contents"])
			assert.Contains(t, string(raw), "Product: Desk Lamp")
			assert.Contains(t, string(raw), "Tone: calm")
			return httpmock.NewStringResponse(http.StatusOK,
				`{"candidates":[{"content":{"role":"model","parts":[{"text":"  Light up your desk. #home  "}]},"finishReason":"STOP"}]}`), nil
		})

	cw, err := NewGenAICopywriter(context.Background(), GenAIConfig{
		APIKey:     "test-key",
		BaseURL:    "https://genai.example.com/",
		HTTPClient: &http.Client{Transport: transport},
	})
	require.NoError(t, err)

	text, err := cw.Caption(context.Background(), CaptionRequest{ProductTitle: "Desk Lamp", Tone: "calm"})
	require.NoError(t, err)
	assert.Equal(t, "Light up your desk. #home", text)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}
