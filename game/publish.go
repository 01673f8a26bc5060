package game

import "strconv"

// Relayed event names, shared with the viewer clients.
const (
	EventSyncState        = "SYNC_STATE"
	EventTimerUpdate      = "TIMER_UPDATE"
	EventSlideChange      = "SLIDE_CHANGE"
	EventBriefingComplete = "BRIEFING_COMPLETE"
	EventAnswerResult     = "ANSWER_RESULT"
	EventGameFinished     = "GAME_FINISHED"
)

// Publisher is the engine's one-way channel to the viewers. Implementations
// must be fire-and-forget: a slow or absent viewer must never block a phase
// transition. The Session calls it after every externally visible change;
// republishing identical state is harmless.
type Publisher interface {
	PublishState(Snapshot)
	PublishTimer(elementID string, timeLeft int)
	PublishEvent(event string, payload any)
}

// Snapshot is the full state pushed to viewers. Field names match the wire
// format the viewer clients were built against. Teams and questions are
// deep copies; a viewer-side marshal never races with the live session.
type Snapshot struct {
	Teams          []Team            `json:"teams"`
	Questions      []Question        `json:"questions"`
	CurrentPhase   Phase             `json:"currentPhase"`
	ActiveQuestion *Question         `json:"activeQuestion"`
	CurrentBid     int               `json:"currentBid"`
	CurrentBidder  *int              `json:"currentBidder"`
	Rebidder       *int              `json:"rebidder"`
	TimerValues    map[string]string `json:"timerValues"`
	CurrentSlide   int               `json:"currentSlide"`
	TotalSlides    int               `json:"totalSlides"`
}

// SlidePosition is the SLIDE_CHANGE payload.
type SlidePosition struct {
	CurrentSlide int `json:"currentSlide"`
	TotalSlides  int `json:"totalSlides"`
}

// AnswerResult is the ANSWER_RESULT payload. PointsGained is the magnitude
// of the swing; IsCorrect carries the sign.
type AnswerResult struct {
	IsCorrect    bool    `json:"isCorrect"`
	PointsGained float64 `json:"pointsGained"`
}

// Snapshot serializes the current session state.
func (s *Session) Snapshot() Snapshot {
	teams := make([]Team, len(s.teams))
	for i, t := range s.teams {
		teams[i] = *t
		history := make(map[string]int, len(t.BidHistory))
		for cat, n := range t.BidHistory {
			history[cat] = n
		}
		teams[i].BidHistory = history
	}

	questions := make([]Question, len(s.questions))
	for i, q := range s.questions {
		questions[i] = *q
	}

	var active *Question
	if s.active != nil {
		copied := *s.active
		active = &copied
	}

	return Snapshot{
		Teams:          teams,
		Questions:      questions,
		CurrentPhase:   s.phase,
		ActiveQuestion: active,
		CurrentBid:     s.currentBid,
		CurrentBidder:  teamRef(s.currentBidder),
		Rebidder:       teamRef(s.rebidder),
		TimerValues:    s.timerValues(),
		CurrentSlide:   s.currentSlide,
		TotalSlides:    s.cfg.TotalSlides,
	}
}

// timerValues reports the literal displayed value of every countdown
// element: the active countdown's remaining seconds, and the full duration
// for the phases not in play.
func (s *Session) timerValues() map[string]string {
	values := map[string]string{
		bidTimerElement:    strconv.Itoa(s.cfg.BidSeconds),
		answerTimerElement: strconv.Itoa(s.cfg.AnswerSeconds),
		rebidTimerElement:  strconv.Itoa(s.cfg.RebidSeconds),
	}
	if s.cd.element != "" {
		values[s.cd.element] = strconv.Itoa(s.cd.remaining)
	}
	return values
}

func teamRef(id int) *int {
	if id < 0 {
		return nil
	}
	ref := id
	return &ref
}

func (s *Session) publishState() {
	s.pub.PublishState(s.Snapshot())
}
