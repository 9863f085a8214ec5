package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultSlogan  = "Excellence in Care, Wellness for Life, Your Health Our Priority"
	FallbackSlogan = "Healing Hands, Caring Hearts"
	DefaultInsight = "Keep patients informed about wait times to improve satisfaction."
)

// Provider generates free text from a prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewProvider picks a provider by kind: "webhook" (or a bare URL) posts the
// prompt to url, anything else answers with the built-in text.
func NewProvider(kind, url string) Provider {
	switch kind {
	case "webhook":
		if url == "" {
			return staticProvider{}
		}
		return webhookProvider{url: url, client: &http.Client{Timeout: 10 * time.Second}}
	default:
		if strings.HasPrefix(kind, "http://") || strings.HasPrefix(kind, "https://") {
			return webhookProvider{url: kind, client: &http.Client{Timeout: 10 * time.Second}}
		}
		return staticProvider{}
	}
}

type staticProvider struct{}

func (staticProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

type webhookProvider struct {
	url    string
	client *http.Client
}

func (p webhookProvider) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", errors.New("provider rejected request")
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

// Service wraps a provider with fixed fallbacks so callers always get text.
type Service struct {
	provider Provider
	logger   zerolog.Logger
}

func NewService(provider Provider, logger zerolog.Logger) *Service {
	if provider == nil {
		provider = staticProvider{}
	}
	return &Service{provider: provider, logger: logger.With().Str("component", "insight").Logger()}
}

// Slogan suggests three comma separated slogans for a clinic.
func (s *Service) Slogan(ctx context.Context, clinicName string) string {
	prompt := fmt.Sprintf("Generate 3 professional and catchy medical slogans for a clinic named %q. Return as a comma-separated list.", clinicName)
	text, err := s.provider.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn().Err(err).Msg("slogan generation failed")
		return FallbackSlogan
	}
	if text == "" {
		return DefaultSlogan
	}
	return text
}

// QueueInsight gives short advice for the current number of waiting patients.
func (s *Service) QueueInsight(ctx context.Context, waiting int) string {
	prompt := fmt.Sprintf("A clinic currently has %d patients waiting in the queue. Provide 1-2 sentences of advice for the clinic administrator to manage the flow efficiently.", waiting)
	text, err := s.provider.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn().Err(err).Msg("queue insight generation failed")
		return DefaultInsight
	}
	if text == "" {
		return DefaultInsight
	}
	return text
}
