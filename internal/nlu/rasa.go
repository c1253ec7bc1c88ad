package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// RasaParser calls a Rasa NLU /model/parse endpoint and converts the
// standard response to the internal representation.
type RasaParser struct {
	url    string
	client *http.Client
}

func NewRasaParser() *RasaParser {
	url := os.Getenv("NLU_RASA_URL")
	if url == "" {
		url = "http://localhost:5005/model/parse"
	}
	return &RasaParser{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *RasaParser) Parse(ctx context.Context, text string) (*Result, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rasa request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rasa returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Intent struct {
			Name       string  `json:"name"`
			Confidence float64 `json:"confidence"`
		} `json:"intent"`
		Entities []struct {
			Entity string `json:"entity"`
			Value  any    `json:"value"`
		} `json:"entities"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding rasa response: %w", err)
	}

	result := &Result{
		Intent: Intent{
			Name:       normalizeIntent(parsed.Intent.Name),
			Confidence: parsed.Intent.Confidence,
		},
		Text: parsed.Text,
	}
	if result.Text == "" {
		result.Text = text
	}

	for _, ent := range parsed.Entities {
		switch ent.Entity {
		case "amount":
			if v, ok := ent.Value.(float64); ok {
				result.Entities.Amount = &v
			}
		case "destination_account":
			if v, ok := ent.Value.(string); ok {
				result.Entities.DestinationAccount = v
			}
		}
	}
	return result, nil
}
