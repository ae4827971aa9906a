package llmrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// message mirrors the OpenAI/Anthropic chat message shape every transport
// in this package accepts.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Messages    []message
	System      string
	MaxTokens   int
	Temperature float64
}

type response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// dispatch routes a request to the transport named by Provider.Transport.
// openrouter and deepseek are OpenAI-compatible, matching the teacher's
// callOpenAI reuse for those providers.
func dispatch(ctx context.Context, client *http.Client, p Provider, req request) (response, FailureClass, error) {
	switch p.Transport {
	case "openai", "openrouter", "deepseek":
		return callOpenAICompatible(ctx, client, p, req)
	case "anthropic":
		return callAnthropic(ctx, client, p, req)
	case "ollama":
		return callOllama(ctx, client, p, req)
	default:
		return response{}, FailureAuthConfig, fmt.Errorf("llmrouter: unknown transport %q", p.Transport)
	}
}

func classifyStatus(status int) FailureClass {
	switch {
	case status == http.StatusTooManyRequests:
		return FailureRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusBadRequest:
		return FailureAuthConfig
	case status >= 500:
		return FailureNetwork
	default:
		return FailureNetwork
	}
}

func callOpenAICompatible(ctx context.Context, client *http.Client, p Provider, req request) (response, FailureClass, error) {
	msgs := make([]message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, req.Messages...)

	body, _ := json.Marshal(map[string]any{
		"model":       p.Model,
		"messages":    msgs,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return response{}, FailureNetwork, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		return response{}, FailureNetwork, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return response{}, classifyStatus(resp.StatusCode), fmt.Errorf("llmrouter: %s returned %d: %s", p.Name, resp.StatusCode, string(b))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return response{}, FailureNetwork, err
	}
	if len(parsed.Choices) == 0 {
		return response{}, FailureNetwork, fmt.Errorf("llmrouter: %s returned no choices", p.Name)
	}
	return response{
		Content:          parsed.Choices[0].Message.Content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, FailureNone, nil
}

func callAnthropic(ctx context.Context, client *http.Client, p Provider, req request) (response, FailureClass, error) {
	msgs := make([]message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, m)
	}

	body, _ := json.Marshal(map[string]any{
		"model":      p.Model,
		"max_tokens": req.MaxTokens,
		"system":     req.System,
		"messages":   msgs,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return response{}, FailureNetwork, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := client.Do(httpReq)
	if err != nil {
		return response{}, FailureNetwork, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return response{}, classifyStatus(resp.StatusCode), fmt.Errorf("llmrouter: %s returned %d: %s", p.Name, resp.StatusCode, string(b))
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return response{}, FailureNetwork, err
	}
	var text string
	for _, c := range parsed.Content {
		text += c.Text
	}
	return response{
		Content:          text,
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
	}, FailureNone, nil
}

func callOllama(ctx context.Context, client *http.Client, p Provider, req request) (response, FailureClass, error) {
	prompt := req.System
	for _, m := range req.Messages {
		prompt += "\n" + m.Role + ": " + m.Content
	}

	body, _ := json.Marshal(map[string]any{
		"model":  p.Model,
		"prompt": prompt,
		"stream": false,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return response{}, FailureNetwork, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return response{}, FailureNetwork, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return response{}, classifyStatus(resp.StatusCode), fmt.Errorf("llmrouter: %s returned %d: %s", p.Name, resp.StatusCode, string(b))
	}

	var parsed struct {
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return response{}, FailureNetwork, err
	}
	return response{
		Content:          parsed.Response,
		PromptTokens:     parsed.PromptEvalCount,
		CompletionTokens: parsed.EvalCount,
	}, FailureNone, nil
}
