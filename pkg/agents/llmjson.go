package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quantaflow/tradecore/pkg/llmrouter"
)

const perAgentLLMTimeout = 30 * time.Second

// askJSON sends a prompt through the router and returns the parsed JSON
// object the model replied with, tolerating markdown code fences the way
// the teacher's forecaster.parseResponse does.
func askJSON(ctx context.Context, router *llmrouter.Router, system, prompt string) (map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, perAgentLLMTimeout)
	defer cancel()

	text, _, _, err := router.Call(callCtx, system, prompt, 1024, 0.3)
	if err != nil {
		return nil, err
	}

	jsonStr := extractJSON(stripMarkdownCodeBlocks(text))
	if jsonStr == "" {
		return nil, fmt.Errorf("agents: no JSON in LLM response")
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("agents: invalid JSON in LLM response: %w", err)
	}
	return raw, nil
}

func stripMarkdownCodeBlocks(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

func extractJSON(s string) string {
	start := -1
	depth := 0
	for i, c := range s {
		if c == '{' {
			if start == -1 {
				start = i
			}
			depth++
		} else if c == '}' {
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func extractFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

func extractString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
