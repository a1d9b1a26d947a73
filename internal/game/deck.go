package game

import "math/rand"

// Card values run 1..DeckSize. On the wire and in storage a hand is a string
// whose bytes are the raw card values; the deck is sized so a full table
// partitions it exactly: 6 hands of 7 plus the owner's chosen card.
const (
	DeckSize       = 43
	CardsPerPlayer = 7
	NPlayers       = 6
)

type Deck struct {
	cards []int
}

// NewDeck builds a shuffled deck of every card except the ones in exclude.
func NewDeck(exclude ...int) *Deck {
	skip := map[int]bool{}
	for _, c := range exclude {
		skip[c] = true
	}
	cards := make([]int, 0, DeckSize)
	for c := 1; c <= DeckSize; c++ {
		if !skip[c] {
			cards = append(cards, c)
		}
	}
	d := &Deck{cards: cards}
	d.shuffle()
	return d
}

func (d *Deck) shuffle() {
	rand.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Deal removes and returns n cards.
func (d *Deck) Deal(n int) []int {
	if n > len(d.cards) {
		n = len(d.cards)
	}
	out := make([]int, n)
	copy(out, d.cards[:n])
	d.cards = d.cards[n:]
	return out
}

func (d *Deck) Remaining() []int {
	out := make([]int, len(d.cards))
	copy(out, d.cards)
	return out
}

func (d *Deck) Len() int { return len(d.cards) }

// EncodeCards packs card values into the single-byte wire form.
func EncodeCards(cards []int) string {
	b := make([]byte, len(cards))
	for i, c := range cards {
		b[i] = byte(c)
	}
	return string(b)
}

// DecodeCards unpacks the single-byte wire form.
func DecodeCards(s string) []int {
	out := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = int(s[i])
	}
	return out
}

// EncodeCard packs a single card; 0 encodes to the empty string.
func EncodeCard(card int) string {
	if card == 0 {
		return ""
	}
	return string([]byte{byte(card)})
}

// DecodeCard unpacks a single card; the empty string decodes to 0.
func DecodeCard(s string) int {
	if s == "" {
		return 0
	}
	return int(s[0])
}
