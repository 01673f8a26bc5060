package game

import "math/rand/v2"

// Status is a question's lifecycle state. Transitions are one-way:
// AVAILABLE -> SOLD or AVAILABLE -> DISCARDED, never back.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusSold      Status = "SOLD"
	StatusDiscarded Status = "DISCARDED"
)

// Question is one cell of the board. The opening price equals the point
// value, and the bid ceiling is five times that.
type Question struct {
	ID                int    `json:"id"`
	DisplayNumber     int    `json:"displayNumber"`
	Category          string `json:"category"`
	Points            int    `json:"points"`
	InitialPrice      int    `json:"initialPrice"`
	Status            Status `json:"status"`
	Winner            *int   `json:"winner"`
	Revealed          bool   `json:"revealed"`
	AnsweredCorrectly bool   `json:"answeredCorrectly"`
}

// generateDeck builds one question per (category, points) pair, shuffles
// them, and numbers them 1..N in shuffled order. Display numbers are all
// the board shows until a question is revealed.
func generateDeck(cfg Config) []*Question {
	deck := make([]*Question, 0, len(cfg.Categories)*len(cfg.Points))
	for _, cat := range cfg.Categories {
		for _, pts := range cfg.Points {
			deck = append(deck, &Question{
				Category:     cat,
				Points:       pts,
				InitialPrice: pts,
				Status:       StatusAvailable,
			})
		}
	}

	shuffle := cfg.Shuffle
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	for i, q := range deck {
		q.ID = i + 1
		q.DisplayNumber = i + 1
	}

	return deck
}

// markSold and markDiscarded enforce the one-way status transitions; once a
// question has left AVAILABLE its status never changes again.
func (q *Question) markSold() {
	if q.Status == StatusAvailable {
		q.Status = StatusSold
	}
}

func (q *Question) markDiscarded() {
	if q.Status == StatusAvailable {
		q.Status = StatusDiscarded
	}
}

func availableCount(deck []*Question) int {
	count := 0
	for _, q := range deck {
		if q.Status == StatusAvailable {
			count++
		}
	}
	return count
}
