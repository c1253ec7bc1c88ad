package nlu

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleParser_BalanceIntent(t *testing.T) {
	p := NewRuleParser()

	res, err := p.Parse(context.Background(), "Quiero consultar mi saldo")
	assert.NoError(t, err)
	assert.Equal(t, IntentBalance, res.Intent.Name)
	assert.Nil(t, res.Entities.Amount)
}

func TestRuleParser_TransferIntentWithEntities(t *testing.T) {
	p := NewRuleParser()

	res, err := p.Parse(context.Background(), "Por favor transferir 150.50 a 012345678901234567")
	assert.NoError(t, err)
	assert.Equal(t, IntentTransfer, res.Intent.Name)
	if assert.NotNil(t, res.Entities.Amount) {
		assert.Equal(t, 150.50, *res.Entities.Amount)
	}
	assert.Equal(t, "012345678901234567", res.Entities.DestinationAccount)
}

func TestRuleParser_CommaDecimalAmount(t *testing.T) {
	p := NewRuleParser()

	res, err := p.Parse(context.Background(), "Enviar 99,90 a 012345678901234567")
	assert.NoError(t, err)
	assert.Equal(t, IntentTransfer, res.Intent.Name)
	if assert.NotNil(t, res.Entities.Amount) {
		assert.Equal(t, 99.90, *res.Entities.Amount)
	}
}

func TestRuleParser_TransferWithoutEntities(t *testing.T) {
	p := NewRuleParser()

	res, err := p.Parse(context.Background(), "Transferir a alguien")
	assert.NoError(t, err)
	assert.Equal(t, IntentTransfer, res.Intent.Name)
	assert.Nil(t, res.Entities.Amount)
	assert.Empty(t, res.Entities.DestinationAccount)
}

func TestRuleParser_UnknownIntent(t *testing.T) {
	p := NewRuleParser()

	res, err := p.Parse(context.Background(), "Texto que no tiene sentido financiero")
	assert.NoError(t, err)
	assert.Equal(t, IntentUnknown, res.Intent.Name)
}

type failingParser struct{}

func (failingParser) Parse(context.Context, string) (*Result, error) {
	return nil, errors.New("provider unavailable")
}

func TestChain_FallsThroughToRuleParser(t *testing.T) {
	chain := NewChain(failingParser{}, failingParser{}, NewRuleParser())

	res, err := chain.Parse(context.Background(), "Saldo")
	assert.NoError(t, err)
	assert.Equal(t, IntentBalance, res.Intent.Name)
}

func TestFromConfig_DefaultIsRuleOnly(t *testing.T) {
	chain := FromConfig("rule")
	assert.Len(t, chain.parsers, 1)

	chain = FromConfig("openai")
	assert.Len(t, chain.parsers, 3)

	chain = FromConfig("rasa")
	assert.Len(t, chain.parsers, 2)
}
