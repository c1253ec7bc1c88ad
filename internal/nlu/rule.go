package nlu

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

var (
	amountPattern  = regexp.MustCompile(`(\d+[.,]\d{1,2}|\d+)`)
	accountPattern = regexp.MustCompile(`(\d{14,20})`)
)

var (
	balanceKeywords  = []string{"saldo", "balance"}
	transferKeywords = []string{"transferir", "enviar", "pagar"}
)

// RuleParser is the terminal strategy: keyword matching for the two
// supported intents, with heuristic amount and account extraction. It
// never returns an error.
type RuleParser struct{}

func NewRuleParser() *RuleParser {
	return &RuleParser{}
}

func (p *RuleParser) Parse(_ context.Context, text string) (*Result, error) {
	t := strings.ToLower(strings.TrimSpace(text))

	if containsAny(t, balanceKeywords) {
		return &Result{
			Intent: Intent{Name: IntentBalance, Confidence: 0.95},
			Text:   text,
		}, nil
	}

	if containsAny(t, transferKeywords) {
		res := &Result{
			Intent: Intent{Name: IntentTransfer, Confidence: 0.9},
			Text:   text,
		}
		if m := amountPattern.FindString(t); m != "" {
			if amount, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64); err == nil {
				res.Entities.Amount = &amount
			}
		}
		if m := accountPattern.FindString(t); m != "" {
			res.Entities.DestinationAccount = m
		}
		return res, nil
	}

	return &Result{
		Intent: Intent{Name: IntentUnknown, Confidence: 0.3},
		Text:   text,
	}, nil
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
