package cards

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullDeckHas52UniqueCards(t *testing.T) {
	deck := FullDeck()
	require.Len(t, deck, 52)
	seen := map[Card]bool{}
	for _, c := range deck {
		assert.False(t, seen[c], "carta duplicada: %s", c)
		seen[c] = true
	}
}

func TestCardValue(t *testing.T) {
	assert.Equal(t, 1, Card{Rank: Ace, Suit: Spades}.Value())
	assert.Equal(t, 7, Card{Rank: Seven, Suit: Hearts}.Value())
	assert.Equal(t, 10, Card{Rank: Ten, Suit: Clubs}.Value())
	assert.Equal(t, 11, Card{Rank: Jack, Suit: Diamonds}.Value())
	assert.Equal(t, 13, Card{Rank: King, Suit: Spades}.Value())
}

func TestCardRed(t *testing.T) {
	assert.True(t, Card{Rank: Ace, Suit: Hearts}.Red())
	assert.True(t, Card{Rank: Ace, Suit: Diamonds}.Red())
	assert.False(t, Card{Rank: Ace, Suit: Spades}.Red())
	assert.False(t, Card{Rank: Ace, Suit: Clubs}.Red())
}

func TestShuffledDeterministicWithSeed(t *testing.T) {
	a := Shuffled(rand.New(rand.NewSource(5)))
	b := Shuffled(rand.New(rand.NewSource(5)))
	assert.Equal(t, a, b)
	require.Len(t, a, 52)
}

func TestWithout(t *testing.T) {
	taken := Card{Rank: Ace, Suit: Spades}
	rest := Without(FullDeck(), taken)
	require.Len(t, rest, 51)
	for _, c := range rest {
		assert.NotEqual(t, taken, c)
	}
}

func TestCardString(t *testing.T) {
	assert.Equal(t, "A♠", Card{Rank: Ace, Suit: Spades}.String())
	assert.Equal(t, "10♥", Card{Rank: Ten, Suit: Hearts}.String())
}
