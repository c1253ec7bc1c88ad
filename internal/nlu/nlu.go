// Package nlu turns free-text wallet messages into a normalized intent
// plus entities. Providers are ranked strategies tried in order; a
// provider failure falls through to the next one, terminating at the
// always-succeeding rule-based parser.
package nlu

import (
	"context"
	"log"
	"strings"
)

// Recognized intent names. The set is closed; anything else a provider
// returns is normalized to IntentUnknown.
const (
	IntentBalance  = "consultar_saldo"
	IntentTransfer = "transferir"
	IntentUnknown  = "desconocido"
)

type Intent struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type Entities struct {
	Amount             *float64 `json:"amount,omitempty"`
	DestinationAccount string   `json:"destination_account,omitempty"`
}

type Result struct {
	Intent   Intent   `json:"intent"`
	Entities Entities `json:"entities"`
	Text     string   `json:"text"`
}

// Parser is the capability every provider implements.
type Parser interface {
	Parse(ctx context.Context, text string) (*Result, error)
}

// Chain tries each parser in order and falls through on error. The last
// entry is expected to never fail.
type Chain struct {
	parsers []Parser
}

func NewChain(parsers ...Parser) *Chain {
	return &Chain{parsers: parsers}
}

func (c *Chain) Parse(ctx context.Context, text string) (*Result, error) {
	var lastErr error
	for _, p := range c.parsers {
		res, err := p.Parse(ctx, text)
		if err == nil {
			return res, nil
		}
		lastErr = err
		log.Printf("[NLU] provider %T failed, falling through: %v", p, err)
	}
	return nil, lastErr
}

// FromConfig builds the provider chain for the NLU_PROVIDER setting:
// "openai" tries OpenAI then Rasa then rules, "rasa" tries Rasa then
// rules, anything else is rules only.
func FromConfig(provider string) *Chain {
	switch strings.ToLower(provider) {
	case "openai":
		return NewChain(NewOpenAIParser(), NewRasaParser(), NewRuleParser())
	case "rasa":
		return NewChain(NewRasaParser(), NewRuleParser())
	default:
		return NewChain(NewRuleParser())
	}
}

func normalizeIntent(name string) string {
	switch name {
	case IntentBalance, IntentTransfer:
		return name
	default:
		return IntentUnknown
	}
}
