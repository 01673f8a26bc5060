package game

import "testing"

func TestGenerateDeck(t *testing.T) {
	cfg := MainConfig()
	deck := generateDeck(cfg)

	if len(deck) != 20 {
		t.Fatalf("got %d questions, want 20", len(deck))
	}

	type pair struct {
		category string
		points   int
	}
	pairs := make(map[pair]int)
	numbers := make(map[int]bool)

	for _, q := range deck {
		pairs[pair{q.Category, q.Points}]++
		numbers[q.DisplayNumber] = true

		if q.Status != StatusAvailable || q.Revealed || q.Winner != nil {
			t.Errorf("question %d not generated clean: %+v", q.ID, q)
		}
		if q.InitialPrice != q.Points {
			t.Errorf("question %d opening price %d != points %d", q.ID, q.InitialPrice, q.Points)
		}
		if q.ID != q.DisplayNumber {
			t.Errorf("question id %d != display number %d", q.ID, q.DisplayNumber)
		}
	}

	if len(pairs) != 20 {
		t.Errorf("got %d distinct (category, points) pairs, want 20", len(pairs))
	}
	for n := 1; n <= 20; n++ {
		if !numbers[n] {
			t.Errorf("display numbers are not a permutation of 1..20: missing %d", n)
		}
	}
}

func TestGenerateDeckUsesInjectedShuffle(t *testing.T) {
	cfg := SimulationConfig()
	cfg.Shuffle = func(n int, swap func(i, j int)) {
		// Reverse the deck so the shuffle is observable.
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			swap(i, j)
		}
	}

	deck := generateDeck(cfg)

	if len(deck) != 5 {
		t.Fatalf("got %d questions, want 5", len(deck))
	}
	if deck[0].Points != 25 || deck[4].Points != 5 {
		t.Errorf("injected shuffle not applied: first=%d last=%d", deck[0].Points, deck[4].Points)
	}
}

func TestQuestionStatusTransitionsAreOneWay(t *testing.T) {
	q := &Question{Status: StatusAvailable}

	q.markSold()
	if q.Status != StatusSold {
		t.Fatalf("status = %q, want SOLD", q.Status)
	}
	q.markDiscarded()
	if q.Status != StatusSold {
		t.Errorf("status = %q, SOLD must never change", q.Status)
	}

	q = &Question{Status: StatusAvailable}
	q.markDiscarded()
	q.markSold()
	if q.Status != StatusDiscarded {
		t.Errorf("status = %q, DISCARDED must never change", q.Status)
	}
}

func TestAvailableCount(t *testing.T) {
	cfg := SimulationConfig()
	deck := generateDeck(cfg)

	if got := availableCount(deck); got != 5 {
		t.Fatalf("availableCount = %d, want 5", got)
	}
	deck[0].markSold()
	deck[1].markDiscarded()
	if got := availableCount(deck); got != 3 {
		t.Errorf("availableCount = %d, want 3", got)
	}
}
