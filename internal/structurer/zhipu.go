package structurer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"medbill/internal/config"
	"medbill/internal/domain"
	"medbill/internal/logger"
	"medbill/internal/port"
)

const defaultBaseURL = "https://open.bigmodel.cn/api/paas/v4"

// ZhipuStructurer implements port.Structurer using the Zhipu GLM Chat
// Completions API.
type ZhipuStructurer struct {
	apiKey      string
	model       string
	temperature float64
	endpoint    string
	client      *http.Client
}

// NewZhipu creates a Zhipu GLM structurer from config.
func NewZhipu(cfg *config.ZhipuConfig) *ZhipuStructurer {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return newZhipu(cfg, base+"/chat/completions")
}

// NewZhipuWithEndpoint creates a structurer pointing at a custom API endpoint (for testing).
func NewZhipuWithEndpoint(cfg *config.ZhipuConfig, endpoint string) *ZhipuStructurer {
	return newZhipu(cfg, endpoint)
}

func newZhipu(cfg *config.ZhipuConfig, endpoint string) *ZhipuStructurer {
	model := cfg.Model
	if model == "" {
		model = "glm-4-flash"
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		// Low temperature biases toward deterministic extraction over
		// creative completion.
		temperature = 0.1
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &ZhipuStructurer{
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: temperature,
		endpoint:    endpoint,
		client:      &http.Client{Timeout: timeout},
	}
}

// Structure sends the flattened invoice text to the model as a single
// user turn and parses the response into a validated InvoiceRecord.
//
// Failure modes: a *ResponseParseError when the response is not valid
// JSON after fence stripping, a *domain.FieldTypeError when a present
// field does not match its declared type. A field legitimately absent
// from the model's JSON stays unset and is not an error.
func (z *ZhipuStructurer) Structure(ctx context.Context, text string) (*port.StructureOutput, error) {
	prompt := BuildPrompt(text)

	reqBody := map[string]interface{}{
		"model":       z.model,
		"temperature": z.temperature,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": prompt,
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+z.apiKey)

	resp, err := z.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling zhipu API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("zhipu API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API: no choices")
	}

	content := apiResp.Choices[0].Message.Content
	logger.WithComponent("structurer").WithField("model", z.model).
		Debugf("raw model response: %s", truncate(content, 500))

	record, err := parseRecord(content)
	if err != nil {
		return nil, err
	}

	return &port.StructureOutput{
		Record:      record,
		RawResponse: content,
		ModelUsed:   z.model,
		PromptUsed:  prompt,
	}, nil
}

func parseRecord(content string) (*domain.InvoiceRecord, error) {
	cleaned := StripCodeFences(content)

	var record domain.InvoiceRecord
	if err := json.Unmarshal([]byte(cleaned), &record); err != nil {
		var fieldErr *domain.FieldTypeError
		if errors.As(err, &fieldErr) {
			return nil, err
		}
		return nil, &ResponseParseError{Raw: truncate(content, 500), Err: err}
	}
	return &record, nil
}

var fenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\n?(.*?)\n?\\s*```$")

// StripCodeFences removes enclosing markdown code fences if present.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
