package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"awards-api/internal/domain"
	apperrors "awards-api/pkg/errors"
	"awards-api/pkg/logger"
)

// Service syncs contacts and companies into HubSpot. The createOrUpdate
// endpoints are keyed by email and domain, so repeating a call with the same
// payload converges on one record instead of creating duplicates.
type Service struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewService creates a new HubSpot sync adapter
func NewService(baseURL, token string, logger *logger.Logger) *Service {
	return &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Name returns the target name the adapter serves
func (s *Service) Name() string {
	return string(domain.TargetHubSpot)
}

type property struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

type upsertRequest struct {
	Properties []property `json:"properties"`
}

// UpsertContact creates or updates a contact keyed by email
func (s *Service) UpsertContact(ctx context.Context, email string, properties map[string]string, segmentTag string) error {
	if email == "" {
		return apperrors.NewValidationError("contact email is required", nil)
	}

	path := fmt.Sprintf("/contacts/v1/contact/createOrUpdate/email/%s", url.PathEscape(domain.NormalizeEmail(email)))
	return s.post(ctx, path, buildProperties(properties, segmentTag))
}

// UpsertCompany creates or updates a company keyed by domain
func (s *Service) UpsertCompany(ctx context.Context, companyDomain string, properties map[string]string, segmentTag string) error {
	if companyDomain == "" {
		return apperrors.NewValidationError("company domain is required", nil)
	}

	path := fmt.Sprintf("/companies/v1/companies/createOrUpdate/domain/%s", url.PathEscape(strings.ToLower(companyDomain)))
	return s.post(ctx, path, buildProperties(properties, segmentTag))
}

func buildProperties(properties map[string]string, segmentTag string) upsertRequest {
	req := upsertRequest{Properties: make([]property, 0, len(properties)+1)}
	for name, value := range properties {
		if value == "" {
			continue
		}
		req.Properties = append(req.Properties, property{Property: name, Value: value})
	}
	req.Properties = append(req.Properties, property{Property: "awards_segment", Value: segmentTag})
	return req
}

func (s *Service) post(ctx context.Context, path string, body upsertRequest) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return apperrors.NewValidationError("failed to marshal HubSpot request", map[string]interface{}{"error": err.Error()})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create HubSpot request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HubSpot request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read HubSpot response: %w", err)
	}

	switch {
	case resp.StatusCode < 300:
		s.logger.WithFields(map[string]interface{}{
			"path":   path,
			"status": resp.StatusCode,
		}).Debug("HubSpot upsert succeeded")
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewRateLimitError("HubSpot rate limit hit")
	case resp.StatusCode >= 500:
		return apperrors.NewExternalError(
			fmt.Sprintf("HubSpot returned status %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
	default:
		return apperrors.NewValidationError(
			fmt.Sprintf("HubSpot rejected the request with status %d", resp.StatusCode),
			map[string]interface{}{"body": strings.TrimSpace(string(respBody))})
	}
}
