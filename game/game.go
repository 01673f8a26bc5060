// Bidbox Battle of Bids engine
//
// Five teams compete over a board of hidden questions spread across five
// categories. Each question is auctioned off: teams bid gold for the right
// to answer, the winner pays their bid, and answering correctly earns the
// question's point value. A wrong answer costs the same points and throws
// the question open to the other teams at the winning price ("re-bid").
// Three consecutive wrong answers suspend a team for two questions, and
// teams that never bid in a category pay for it at the end of the game.
//
// The engine is a plain state machine with no transport or rendering
// concerns: a single Session owns all game state, every operator command is
// a method call that either mutates state and publishes, or rejects with an
// error and changes nothing. Callers are expected to serialize access; the
// room hub drives one Session from a single goroutine.

package game

import "errors"

// Rejection reasons surfaced to the operator. Every invalid command leaves
// the session untouched.
var (
	ErrWrongPhase          = errors.New("not allowed in the current phase")
	ErrFinished            = errors.New("the game has already been finished")
	ErrNoActiveQuestion    = errors.New("no question is in play")
	ErrQuestionUnavailable = errors.New("question is not available")
	ErrNoSuchTeam          = errors.New("no such team")
	ErrSuspended           = errors.New("team is suspended")
	ErrNotMultipleOfFive   = errors.New("bid must be a positive multiple of 5")
	ErrBidTooLow           = errors.New("bid is below the minimum")
	ErrBidTooHigh          = errors.New("bid exceeds the ceiling")
	ErrInsufficientGold    = errors.New("not enough gold")
	ErrBiddingClosed       = errors.New("bidding has already closed")
	ErrNoBidder            = errors.New("no bid has been accepted")
	ErrOriginalBidder      = errors.New("the original bidder cannot claim the throw")
	ErrNoCountdown         = errors.New("no countdown to act on")
)

// Config parameterizes a Session. The main game and the simulation variant
// share one state machine and differ only in these values.
type Config struct {
	TeamNames     []string
	Categories    []string
	Points        []int
	InitialGold   int
	BidSeconds    int
	AnswerSeconds int
	RebidSeconds  int
	TotalSlides   int

	// Shuffle permutes the freshly generated deck, Fisher-Yates style:
	// it receives the deck length and a swap callback. Left nil, the
	// Session uses math/rand/v2. Tests inject a fixed permutation.
	Shuffle func(n int, swap func(i, j int))
}

// MainConfig is the competition setup: five teams, five categories with
// four point values each (20 questions), 700 starting gold.
func MainConfig() Config {
	return Config{
		TeamNames:     []string{"Tim 1", "Tim 2", "Tim 3", "Tim 4", "Tim 5"},
		Categories:    []string{"Kombinatorika", "Aljabar Linear", "Struktur Aljabar", "Analisis Riil", "Analisis Kompleks"},
		Points:        []int{5, 10, 15, 25},
		InitialGold:   700,
		BidSeconds:    30,
		AnswerSeconds: 180,
		RebidSeconds:  10,
		TotalSlides:   8,
	}
}

// SimulationConfig is the warmup setup: a single category with five point
// values, so the whole board is five questions.
func SimulationConfig() Config {
	cfg := MainConfig()
	cfg.Categories = []string{"Kombinatorika"}
	cfg.Points = []int{5, 10, 15, 20, 25}
	return cfg
}
