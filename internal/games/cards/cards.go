// Package cards modela o baralho francês usado pelos jogos de mesa
package cards

import "math/rand"

type Suit string
type Rank string

const (
	Hearts   Suit = "♥"
	Diamonds Suit = "♦"
	Clubs    Suit = "♣"
	Spades   Suit = "♠"
)

const (
	Ace   Rank = "A"
	Two   Rank = "2"
	Three Rank = "3"
	Four  Rank = "4"
	Five  Rank = "5"
	Six   Rank = "6"
	Seven Rank = "7"
	Eight Rank = "8"
	Nine  Rank = "9"
	Ten   Rank = "10"
	Jack  Rank = "J"
	Queen Rank = "Q"
	King  Rank = "K"
)

var Suits = []Suit{Spades, Hearts, Diamonds, Clubs}
var Ranks = []Rank{Ace, Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King}

type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

func (c Card) String() string {
	return string(c.Rank) + string(c.Suit)
}

// Value é o valor de comparação usado nos jogos de confronto (A baixo, K alto)
func (c Card) Value() int {
	switch c.Rank {
	case Ace:
		return 1
	case Jack:
		return 11
	case Queen:
		return 12
	case King:
		return 13
	case Ten:
		return 10
	default:
		return int(c.Rank[0] - '0')
	}
}

// Red informa se a carta é vermelha (copas ou ouros)
func (c Card) Red() bool {
	return c.Suit == Hearts || c.Suit == Diamonds
}

// FullDeck devolve as 52 cartas em ordem canônica (espaço de resultados dos sorteios)
func FullDeck() []Card {
	deck := make([]Card, 0, len(Suits)*len(Ranks))
	for _, suit := range Suits {
		for _, rank := range Ranks {
			deck = append(deck, Card{Rank: rank, Suit: suit})
		}
	}
	return deck
}

// Shuffled devolve um baralho embaralhado pela fonte aleatória da mesa.
// A fonte é injetada: nenhum estado global compartilhado entre mesas.
func Shuffled(rng *rand.Rand) []Card {
	deck := FullDeck()
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// Without devolve o espaço de cartas excluindo as já sorteadas
func Without(space []Card, taken ...Card) []Card {
	out := make([]Card, 0, len(space))
	for _, c := range space {
		skip := false
		for _, t := range taken {
			if c == t {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, c)
		}
	}
	return out
}
