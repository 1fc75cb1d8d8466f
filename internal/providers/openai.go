package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient implements Client for OpenAI-compatible completion APIs
// (OpenAI, Groq, OpenRouter, DeepSeek, etc.).
type OpenAIClient struct {
	name        string
	apiKey      string
	apiBase     string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
	retryConfig RetryConfig
}

// NewOpenAIClient builds a completion client. timeout bounds each HTTP
// attempt; the retry policy adds at most one more attempt on top.
func NewOpenAIClient(apiKey, apiBase, model string, maxTokens int, temperature float64, timeout time.Duration) *OpenAIClient {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		name:        "openai",
		apiKey:      apiKey,
		apiBase:     strings.TrimRight(apiBase, "/"),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		client:      &http.Client{Timeout: timeout},
		retryConfig: DefaultRetryConfig(),
	}
}

func (c *OpenAIClient) Name() string { return c.name }

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, []Message{{Role: "user", Content: prompt}})
}

func (c *OpenAIClient) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	content := []map[string]any{
		{"type": "text", "text": prompt},
		{"type": "image_url", "image_url": map[string]string{"url": dataURI}},
	}
	return c.chat(ctx, []Message{{Role: "user", Content: content}})
}

func (c *OpenAIClient) AnalyzeDocument(ctx context.Context, prompt string, doc []byte, fileName string) (string, error) {
	dataURI := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(doc)
	content := []map[string]any{
		{"type": "text", "text": prompt},
		{"type": "file", "file": map[string]string{"filename": fileName, "file_data": dataURI}},
	}
	return c.chat(ctx, []Message{{Role: "user", Content: content}})
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) chat(ctx context.Context, messages []Message) (string, error) {
	body := map[string]any{
		"model":    c.model,
		"messages": messages,
	}
	if c.maxTokens > 0 {
		body["max_tokens"] = c.maxTokens
	}
	if c.temperature > 0 {
		body["temperature"] = c.temperature
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", c.name, err)
	}

	return RetryDo(ctx, c.retryConfig, func() (string, error) {
		respBody, err := c.doRequest(ctx, payload)
		if err != nil {
			return "", err
		}
		defer respBody.Close()

		var oaiResp openAIResponse
		if err := json.NewDecoder(respBody).Decode(&oaiResp); err != nil {
			return "", fmt.Errorf("%s: decode response: %w", c.name, err)
		}
		if oaiResp.Error != nil {
			return "", fmt.Errorf("%s: api error: %s", c.name, oaiResp.Error.Message)
		}
		if len(oaiResp.Choices) == 0 {
			return "", fmt.Errorf("%s: empty choices", c.name)
		}
		return oaiResp.Choices[0].Message.Content, nil
	})
}

func (c *OpenAIClient) doRequest(ctx context.Context, payload []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request: %w", c.name, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%s: status %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(slurp)))
	}
	return resp.Body, nil
}
