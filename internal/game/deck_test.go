package game

import "testing"

func TestNewDeckCoversUniverse(t *testing.T) {
	d := NewDeck()
	if d.Len() != DeckSize {
		t.Fatalf("deck size = %d, want %d", d.Len(), DeckSize)
	}
	seen := map[int]bool{}
	for _, c := range d.Remaining() {
		if c < 1 || c > DeckSize {
			t.Fatalf("card %d out of range", c)
		}
		if seen[c] {
			t.Fatalf("card %d duplicated", c)
		}
		seen[c] = true
	}
}

func TestNewDeckExcludes(t *testing.T) {
	d := NewDeck(5)
	if d.Len() != DeckSize-1 {
		t.Fatalf("deck size = %d, want %d", d.Len(), DeckSize-1)
	}
	for _, c := range d.Remaining() {
		if c == 5 {
			t.Fatalf("excluded card 5 still present")
		}
	}
}

func TestDealConsumesDeck(t *testing.T) {
	d := NewDeck()
	hand := d.Deal(CardsPerPlayer)
	if len(hand) != CardsPerPlayer {
		t.Fatalf("hand size = %d, want %d", len(hand), CardsPerPlayer)
	}
	if d.Len() != DeckSize-CardsPerPlayer {
		t.Fatalf("remaining = %d, want %d", d.Len(), DeckSize-CardsPerPlayer)
	}
	inHand := map[int]bool{}
	for _, c := range hand {
		inHand[c] = true
	}
	for _, c := range d.Remaining() {
		if inHand[c] {
			t.Fatalf("card %d both dealt and remaining", c)
		}
	}
}

func TestCardCodec(t *testing.T) {
	cards := []int{1, 7, 42, 43}
	enc := EncodeCards(cards)
	if len(enc) != len(cards) {
		t.Fatalf("encoded length = %d, want %d", len(enc), len(cards))
	}
	dec := DecodeCards(enc)
	if len(dec) != len(cards) {
		t.Fatalf("decoded length = %d, want %d", len(dec), len(cards))
	}
	for i := range cards {
		if dec[i] != cards[i] {
			t.Fatalf("card %d decoded as %d", cards[i], dec[i])
		}
	}
	if EncodeCard(0) != "" {
		t.Fatalf("EncodeCard(0) = %q, want empty", EncodeCard(0))
	}
	if DecodeCard("") != 0 {
		t.Fatalf("DecodeCard(\"\") = %d, want 0", DecodeCard(""))
	}
}
