package match

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignite/reportsync/internal/domain"
)

func clients(names ...string) []domain.Client {
	out := make([]domain.Client, len(names))
	for i, n := range names {
		out[i] = domain.Client{ID: uuid.New(), Name: n, SourceType: domain.SourceVoicemail}
	}
	return out
}

func TestClientLongestPrefixWins(t *testing.T) {
	candidates := clients("JAE", "JAE Automation")

	got := Client("JAE Automation Spring Promo", candidates)
	if assert.NotNil(t, got) {
		assert.Equal(t, "JAE Automation", got.Name)
	}

	// The shorter prefix still matches campaigns that only carry it.
	got = Client("JAE Winter Blast", candidates)
	if assert.NotNil(t, got) {
		assert.Equal(t, "JAE", got.Name)
	}
}

func TestClientNoMatch(t *testing.T) {
	candidates := clients("Acme", "Globex")
	assert.Nil(t, Client("Initech Q3", candidates))
	assert.Nil(t, Client("", candidates))
	assert.Nil(t, Client("Acme Q3", nil))
}

func TestClientExactNameIsPrefix(t *testing.T) {
	candidates := clients("Acme")
	got := Client("Acme", candidates)
	if assert.NotNil(t, got) {
		assert.Equal(t, "Acme", got.Name)
	}
}

func TestClientDoesNotMutateCandidates(t *testing.T) {
	candidates := clients("A", "AB", "ABC")
	Client("ABC campaign", candidates)
	assert.Equal(t, "A", candidates[0].Name)
	assert.Equal(t, "AB", candidates[1].Name)
	assert.Equal(t, "ABC", candidates[2].Name)
}
