package mailchimp

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"awards-api/internal/domain"
	apperrors "awards-api/pkg/errors"
	"awards-api/pkg/logger"
)

// Service syncs contacts into a Mailchimp audience. Members are addressed by
// the MD5 hash of the lowercased email, and PUT creates or updates in one
// call, which is what makes dispatcher retries safe.
type Service struct {
	baseURL    string
	token      string
	listID     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewService creates a new Mailchimp sync adapter
func NewService(baseURL, token, listID string, logger *logger.Logger) *Service {
	return &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		listID:  listID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Name returns the target name the adapter serves
func (s *Service) Name() string {
	return string(domain.TargetMailchimp)
}

type memberRequest struct {
	EmailAddress string            `json:"email_address"`
	StatusIfNew  string            `json:"status_if_new"`
	MergeFields  map[string]string `json:"merge_fields,omitempty"`
	Tags         []string          `json:"tags"`
}

// UpsertContact creates or updates an audience member keyed by email
func (s *Service) UpsertContact(ctx context.Context, email string, properties map[string]string, segmentTag string) error {
	if email == "" {
		return apperrors.NewValidationError("contact email is required", nil)
	}

	normalized := domain.NormalizeEmail(email)
	body := memberRequest{
		EmailAddress: normalized,
		StatusIfNew:  "subscribed",
		MergeFields:  mergeFields(properties),
		Tags:         []string{segmentTag},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return apperrors.NewValidationError("failed to marshal Mailchimp request", map[string]interface{}{"error": err.Error()})
	}

	path := fmt.Sprintf("/3.0/lists/%s/members/%s", s.listID, subscriberHash(normalized))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create Mailchimp request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Mailchimp request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read Mailchimp response: %w", err)
	}

	switch {
	case resp.StatusCode < 300:
		s.logger.WithFields(map[string]interface{}{
			"list_id": s.listID,
			"status":  resp.StatusCode,
		}).Debug("Mailchimp upsert succeeded")
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewRateLimitError("Mailchimp rate limit hit")
	case resp.StatusCode >= 500:
		return apperrors.NewExternalError(
			fmt.Sprintf("Mailchimp returned status %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
	default:
		return apperrors.NewValidationError(
			fmt.Sprintf("Mailchimp rejected the request with status %d", resp.StatusCode),
			map[string]interface{}{"body": strings.TrimSpace(string(respBody))})
	}
}

// UpsertCompany is not supported by Mailchimp audiences; company events are
// never routed here (see domain.TargetsFor). A stray entry dead-letters
// instead of silently passing.
func (s *Service) UpsertCompany(ctx context.Context, companyDomain string, properties map[string]string, segmentTag string) error {
	return apperrors.NewValidationError("Mailchimp has no company records", nil)
}

// subscriberHash is Mailchimp's member key: md5 of the lowercased email
func subscriberHash(email string) string {
	sum := md5.Sum([]byte(email))
	return hex.EncodeToString(sum[:])
}

// mergeFields maps internal property names onto Mailchimp merge fields
func mergeFields(properties map[string]string) map[string]string {
	fields := make(map[string]string, len(properties))
	if v := properties["name"]; v != "" {
		fields["FNAME"] = v
	}
	if v := properties["company"]; v != "" {
		fields["COMPANY"] = v
	}
	if v := properties["country"]; v != "" {
		fields["COUNTRY"] = v
	}
	if v := properties["live_url"]; v != "" {
		fields["LIVEURL"] = v
	}
	return fields
}
