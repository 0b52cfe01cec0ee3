package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/pkg/apiclient"
)

var ErrContentNotFound = errors.New("content not found in catalog")

// ContentMetadata is the normalized price and deadline for a content key.
// ContentPrice is in USD cents; nil means the catalog has no price for it.
type ContentMetadata struct {
	ContentKey   string     `json:"content_key"`
	ContentUUID  string     `json:"content_uuid,omitempty"`
	Title        string     `json:"title,omitempty"`
	Source       string     `json:"source,omitempty"`
	ContentPrice *int64     `json:"content_price"`
	EnrollByDate *time.Time `json:"enroll_by_date"`
}

// Client talks to the enterprise catalog service.
type Client struct {
	api *apiclient.Client
}

// NewClient wraps an API client configured for the catalog.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// ContainsContentKey reports whether the catalog includes the content key.
func (c *Client) ContainsContentKey(ctx context.Context, catalogUUID uuid.UUID, contentKey string) (bool, error) {
	query := url.Values{}
	query.Set("course_run_ids", contentKey)
	query.Set("program_uuids", contentKey)

	var out struct {
		ContainsContentItems bool `json:"contains_content_items"`
	}
	path := "/api/v1/enterprise-catalogs/" + catalogUUID.String() + "/contains_content_items/"
	if err := c.api.GetJSON(ctx, path, query, &out); err != nil {
		return false, fmt.Errorf("catalog contains %s: %w", contentKey, err)
	}
	return out.ContainsContentItems, nil
}

// GetContentMetadata fetches price and enrollment deadline for a content key.
func (c *Client) GetContentMetadata(ctx context.Context, contentKey string) (*ContentMetadata, error) {
	var out ContentMetadata
	path := "/api/v1/content-metadata/" + url.PathEscape(contentKey) + "/"
	if err := c.api.GetJSON(ctx, path, nil, &out); err != nil {
		if apiclient.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrContentNotFound, contentKey)
		}
		return nil, fmt.Errorf("catalog metadata %s: %w", contentKey, err)
	}
	if out.ContentKey == "" {
		out.ContentKey = contentKey
	}
	return &out, nil
}
