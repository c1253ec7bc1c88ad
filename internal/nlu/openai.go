package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const openAISystemPrompt = "You are an NLU engine for a banking chatbot over WhatsApp. " +
	"Given the user message, you MUST respond with a JSON object with keys " +
	"'intent', 'entities', and 'text'. 'intent' must be an object with keys " +
	"'name' and 'confidence'. 'name' MUST be one of: '" + IntentBalance + "', '" +
	IntentTransfer + "', '" + IntentUnknown + "'. 'entities' must be an object " +
	"that may contain 'amount' (number) and 'destination_account' (string). " +
	"Return JSON only, no extra text."

// OpenAIParser calls an OpenAI-compatible chat completions endpoint.
// Any transport, auth, or malformed-response problem is returned as an
// error so the chain can fall through.
type OpenAIParser struct {
	apiBase string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIParser() *OpenAIParser {
	apiBase := os.Getenv("NLU_OPENAI_API_BASE")
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	model := os.Getenv("NLU_OPENAI_MODEL")
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &OpenAIParser{
		apiBase: apiBase,
		apiKey:  os.Getenv("NLU_OPENAI_API_KEY"),
		model:   model,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *OpenAIParser) Parse(ctx context.Context, text string) (*Result, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("NLU_OPENAI_API_KEY not set")
	}

	payload := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": openAISystemPrompt},
			{"role": "user", "content": text},
		},
		"temperature": 0,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(p.apiBase, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned status %d", resp.StatusCode)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decoding openai response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices in openai response")
	}

	var result Result
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &result); err != nil {
		return nil, fmt.Errorf("model did not return valid JSON: %w", err)
	}

	result.Intent.Name = normalizeIntent(result.Intent.Name)
	if result.Text == "" {
		result.Text = text
	}
	return &result, nil
}
