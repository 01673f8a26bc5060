package game

import "fmt"

// Phase is the host-side phase of the question cycle. FINISHED exists only
// on the wire; the session itself stays on the board after game end.
type Phase string

const (
	PhaseSetup       Phase = "SETUP"
	PhasePreround    Phase = "PREROUND"
	PhaseBoard       Phase = "BOARD"
	PhaseBidding     Phase = "BIDDING"
	PhaseAnswering   Phase = "ANSWERING"
	PhaseRebidding   Phase = "REBIDDING"
	PhaseReanswering Phase = "REANSWERING"
)

const (
	bidTimerElement    = "bid-timer"
	answerTimerElement = "answer-timer"
	rebidTimerElement  = "rebid-timer"
)

const bidStep = 5

// countdown is the single displayed countdown. The generation token fences
// ticks: every start, pause, resume, or stop bumps it, so a tick from a
// superseded countdown can never apply.
type countdown struct {
	element   string
	remaining int
	running   bool
	paused    bool
	gen       uint64
}

// Session is the owned aggregate holding an entire game: teams, deck, phase,
// and the transient bid state of the question in play. All methods are
// synchronous and must be called from a single goroutine (or behind one
// lock); the room hub's run loop provides that.
type Session struct {
	cfg Config
	pub Publisher

	teams     []*Team
	questions []*Question

	phase         Phase
	active        *Question
	currentBid    int
	currentBidder int
	rebidder      int

	// awarded marks that the winner's gold has been deducted for the
	// active question; biddingClosed marks that the bid countdown has
	// expired with no bidder, opening the late-bid window.
	awarded       bool
	biddingClosed bool

	currentSlide int
	finished     bool

	cd countdown
}

func NewSession(cfg Config, pub Publisher) *Session {
	return &Session{
		cfg:           cfg,
		pub:           pub,
		phase:         PhaseSetup,
		currentBidder: -1,
		rebidder:      -1,
		currentSlide:  1,
	}
}

func (s *Session) Phase() Phase    { return s.phase }
func (s *Session) Finished() bool  { return s.finished }
func (s *Session) CurrentBid() int { return s.currentBid }

// AvailableCount reports how many questions are still on the board. The
// operator decides when the game ends; exhaustion is not auto-enforced.
func (s *Session) AvailableCount() int {
	return availableCount(s.questions)
}

// TimerState exposes the active countdown to the tick driver.
func (s *Session) TimerState() (element string, remaining int, running bool, gen uint64) {
	return s.cd.element, s.cd.remaining, s.cd.running, s.cd.gen
}

// --- Game lifecycle ---

// StartGame creates the teams, generates and shuffles the deck, and enters
// the pre-round briefing. Blank names fall back to the configured defaults.
func (s *Session) StartGame(names []string) error {
	if s.phase != PhaseSetup {
		return fmt.Errorf("start game: %w", ErrWrongPhase)
	}

	s.teams = newTeams(s.cfg, names)
	s.questions = generateDeck(s.cfg)
	s.clearTransients()
	s.finished = false
	s.currentSlide = 1
	s.phase = PhasePreround
	s.publishState()

	return nil
}

// Reset abandons the current game and returns to setup. Always legal; the
// operator confirms on their side.
func (s *Session) Reset() {
	s.stopCountdown()
	s.teams = nil
	s.questions = nil
	s.clearTransients()
	s.finished = false
	s.currentSlide = 1
	s.phase = PhaseSetup
	s.publishState()
}

// FinishGame applies the participation penalty and ends the session. It is
// one-shot: a second call is rejected, and no question can be selected
// afterwards.
func (s *Session) FinishGame() error {
	if s.phase != PhaseBoard {
		return fmt.Errorf("finish game: %w", ErrWrongPhase)
	}
	if s.finished {
		return fmt.Errorf("finish game: %w", ErrFinished)
	}

	applyParticipationPenalty(s.teams, s.cfg.Categories)
	s.finished = true
	s.publishState()
	s.pub.PublishEvent(EventGameFinished, nil)

	return nil
}

// --- Briefing slides ---

func (s *Session) NextSlide() error {
	if s.phase != PhasePreround {
		return fmt.Errorf("next slide: %w", ErrWrongPhase)
	}
	if s.currentSlide >= s.cfg.TotalSlides {
		return s.FinishBriefing()
	}
	s.currentSlide++
	s.publishSlide()
	return nil
}

func (s *Session) PrevSlide() error {
	if s.phase != PhasePreround {
		return fmt.Errorf("prev slide: %w", ErrWrongPhase)
	}
	if s.currentSlide > 1 {
		s.currentSlide--
		s.publishSlide()
	}
	return nil
}

func (s *Session) GoToSlide(n int) error {
	if s.phase != PhasePreround {
		return fmt.Errorf("go to slide: %w", ErrWrongPhase)
	}
	if n < 1 || n > s.cfg.TotalSlides {
		return fmt.Errorf("go to slide: no slide %d", n)
	}
	s.currentSlide = n
	s.publishSlide()
	return nil
}

// FinishBriefing closes the slide deck and opens the board.
func (s *Session) FinishBriefing() error {
	if s.phase != PhasePreround {
		return fmt.Errorf("finish briefing: %w", ErrWrongPhase)
	}
	s.pub.PublishEvent(EventBriefingComplete, nil)
	s.phase = PhaseBoard
	s.publishState()
	return nil
}

func (s *Session) publishSlide() {
	s.pub.PublishEvent(EventSlideChange, SlidePosition{
		CurrentSlide: s.currentSlide,
		TotalSlides:  s.cfg.TotalSlides,
	})
	s.publishState()
}

// --- Question selection and bidding ---

// SelectQuestion reveals an available question and arms the bid countdown.
// The countdown does not run until the operator starts it.
func (s *Session) SelectQuestion(id int) error {
	if s.phase != PhaseBoard {
		return fmt.Errorf("select question: %w", ErrWrongPhase)
	}
	if s.finished {
		return fmt.Errorf("select question: %w", ErrFinished)
	}

	var question *Question
	for _, q := range s.questions {
		if q.ID == id {
			question = q
			break
		}
	}
	if question == nil {
		return fmt.Errorf("select question %d: %w", id, ErrQuestionUnavailable)
	}
	if question.Status != StatusAvailable {
		return fmt.Errorf("select question %d: %w", id, ErrQuestionUnavailable)
	}

	question.Revealed = true
	s.active = question
	s.currentBid = 0
	s.currentBidder = -1
	s.awarded = false
	s.biddingClosed = false
	s.armCountdown(bidTimerElement, s.cfg.BidSeconds)
	s.phase = PhaseBidding
	s.publishState()

	return nil
}

// StartBidding starts the armed bid countdown.
func (s *Session) StartBidding() error {
	if s.phase != PhaseBidding {
		return fmt.Errorf("start bidding: %w", ErrWrongPhase)
	}
	if s.biddingClosed || s.awarded {
		return fmt.Errorf("start bidding: %w", ErrBiddingClosed)
	}
	return s.startCountdown(bidTimerElement)
}

// PlaceBid validates and applies a bid. The reported late flag is true when
// the bid landed after the countdown expired with no prior bidder; such
// bids are accepted as long as the operator has not declared no-winner, and
// are awarded immediately since the countdown is already gone.
func (s *Session) PlaceBid(teamID, amount int) (late bool, err error) {
	if s.phase != PhaseBidding {
		return false, fmt.Errorf("place bid: %w", ErrWrongPhase)
	}
	if s.active == nil {
		return false, fmt.Errorf("place bid: %w", ErrNoActiveQuestion)
	}
	if s.awarded {
		return false, fmt.Errorf("place bid: %w", ErrBiddingClosed)
	}
	if teamID < 0 || teamID >= len(s.teams) {
		return false, fmt.Errorf("place bid: team %d: %w", teamID, ErrNoSuchTeam)
	}

	team := s.teams[teamID]
	if team.Suspended {
		return false, fmt.Errorf("place bid: %s: %w", team.Name, ErrSuspended)
	}
	if amount <= 0 || amount%bidStep != 0 {
		return false, fmt.Errorf("place bid: %d: %w", amount, ErrNotMultipleOfFive)
	}

	minBid := s.active.InitialPrice
	if s.currentBid > 0 {
		minBid = s.currentBid + bidStep
	}
	if amount < minBid {
		return false, fmt.Errorf("place bid: %d < %d: %w", amount, minBid, ErrBidTooLow)
	}

	maxBid := s.active.InitialPrice * 5
	if amount > maxBid {
		return false, fmt.Errorf("place bid: %d > %d: %w", amount, maxBid, ErrBidTooHigh)
	}
	if amount > team.Gold {
		return false, fmt.Errorf("place bid: %s has %d gold: %w", team.Name, team.Gold, ErrInsufficientGold)
	}

	late = s.biddingClosed && s.currentBidder == -1

	s.currentBid = amount
	s.currentBidder = teamID
	team.recordBid(s.active.Category)

	switch {
	case late:
		// The countdown already expired; award on acceptance.
		s.award()
	case amount == maxBid:
		// Ceiling reached: bidding stops immediately.
		s.stopCountdown()
		s.award()
	}

	s.publishState()
	return late, nil
}

// closeBidding is the bid countdown's expiry action. With a bidder on
// record the question is awarded and waits for operator confirmation; with
// none, the late-bid window opens until the operator declares no-winner.
func (s *Session) closeBidding() {
	if s.currentBidder == -1 {
		s.biddingClosed = true
		s.publishState()
		return
	}
	s.award()
	s.publishState()
}

// award deducts the winning bid from the winner, exactly once per question.
// A suspended winner keeps the deduction; the confirm step routes them to
// the throw instead of answering (no refund, per the competition ruling).
func (s *Session) award() {
	if s.awarded || s.currentBidder == -1 {
		return
	}
	winner := s.currentBidder
	s.teams[winner].Gold -= s.currentBid
	s.active.Winner = &winner
	s.awarded = true
}

// NoWinner discards the question with a 5-point penalty for every team.
// This is also the operator's escape hatch to void an awarded bid; the
// deducted gold stays deducted in that case, matching the live ruleset.
func (s *Session) NoWinner() error {
	if s.phase != PhaseBidding {
		return fmt.Errorf("no winner: %w", ErrWrongPhase)
	}

	s.stopCountdown()
	for _, team := range s.teams {
		team.Points -= noBidderPenalty
	}
	s.active.markDiscarded()
	s.finalize()

	return nil
}

// ProceedToAnswering is the operator's confirmation after an award. If the
// recorded winner is suspended they are not allowed to answer; the question
// goes straight to the throw at the same price.
func (s *Session) ProceedToAnswering() error {
	if s.phase != PhaseBidding {
		return fmt.Errorf("proceed to answering: %w", ErrWrongPhase)
	}
	if s.currentBidder == -1 {
		return fmt.Errorf("proceed to answering: %w", ErrNoBidder)
	}
	if !s.awarded {
		return fmt.Errorf("proceed to answering: bidding still open: %w", ErrWrongPhase)
	}

	if s.teams[s.currentBidder].Suspended {
		s.enterRebidding()
		return nil
	}

	s.phase = PhaseAnswering
	s.armCountdown(answerTimerElement, s.cfg.AnswerSeconds)
	if err := s.startCountdown(answerTimerElement); err != nil {
		return err
	}
	s.publishState()
	return nil
}

// --- Answering ---

// JudgeAnswer settles the first answer. Correct sells the question to the
// winner; wrong sells it too (the winner already paid) and opens the throw.
func (s *Session) JudgeAnswer(correct bool) error {
	if s.phase != PhaseAnswering {
		return fmt.Errorf("judge answer: %w", ErrWrongPhase)
	}
	if s.currentBidder == -1 {
		return fmt.Errorf("judge answer: %w", ErrNoBidder)
	}

	s.stopCountdown()

	base := s.active.Points
	applyAnswerOutcome(s.teams, s.currentBidder, correct, base)
	s.active.markSold()
	if correct {
		s.active.AnsweredCorrectly = true
	}

	s.pub.PublishEvent(EventAnswerResult, AnswerResult{
		IsCorrect:    correct,
		PointsGained: float64(base),
	})
	s.publishState()

	if correct {
		s.finalize()
	} else {
		s.enterRebidding()
	}
	return nil
}

// --- Re-bidding (the throw) ---

func (s *Session) enterRebidding() {
	s.phase = PhaseRebidding
	s.armCountdown(rebidTimerElement, s.cfg.RebidSeconds)
	s.publishState()
}

// StartRebidding starts the armed throw countdown.
func (s *Session) StartRebidding() error {
	if s.phase != PhaseRebidding {
		return fmt.Errorf("start rebidding: %w", ErrWrongPhase)
	}
	return s.startCountdown(rebidTimerElement)
}

// ClaimRebid hands the question to the fastest eligible team at the
// original winning price. Who was fastest is decided in the room; the
// engine only validates eligibility.
func (s *Session) ClaimRebid(teamID int) error {
	if s.phase != PhaseRebidding {
		return fmt.Errorf("claim rebid: %w", ErrWrongPhase)
	}
	if teamID < 0 || teamID >= len(s.teams) {
		return fmt.Errorf("claim rebid: team %d: %w", teamID, ErrNoSuchTeam)
	}
	if teamID == s.currentBidder {
		return fmt.Errorf("claim rebid: %w", ErrOriginalBidder)
	}

	team := s.teams[teamID]
	if team.Suspended {
		return fmt.Errorf("claim rebid: %s: %w", team.Name, ErrSuspended)
	}
	if team.Gold < s.currentBid {
		return fmt.Errorf("claim rebid: %s has %d gold: %w", team.Name, team.Gold, ErrInsufficientGold)
	}

	s.stopCountdown()
	team.Gold -= s.currentBid
	s.rebidder = teamID
	s.phase = PhaseReanswering
	s.publishState()

	return nil
}

// CancelRebid closes the throw with no claimant; the question stays sold.
func (s *Session) CancelRebid() error {
	if s.phase != PhaseRebidding {
		return fmt.Errorf("cancel rebid: %w", ErrWrongPhase)
	}
	s.stopCountdown()
	s.active.markSold()
	s.finalize()
	return nil
}

// JudgeReAnswer settles the thrown question. There is no engine countdown
// here; the operator controls the pace.
func (s *Session) JudgeReAnswer(correct bool) error {
	if s.phase != PhaseReanswering {
		return fmt.Errorf("judge re-answer: %w", ErrWrongPhase)
	}
	if s.rebidder == -1 {
		return fmt.Errorf("judge re-answer: %w", ErrNoBidder)
	}

	gained := applyReAnswerOutcome(s.teams[s.rebidder], correct, s.active.Points)
	s.active.markSold()

	s.pub.PublishEvent(EventAnswerResult, AnswerResult{
		IsCorrect:    correct,
		PointsGained: gained,
	})
	s.publishState()
	s.finalize()

	return nil
}

// finalize is the common path back to the board: suspensions burn down by
// one question, the transient bid state clears, and the new state goes out.
func (s *Session) finalize() {
	expireSuspensions(s.teams)
	s.stopCountdown()
	s.clearTransients()
	s.phase = PhaseBoard
	s.publishState()
}

func (s *Session) clearTransients() {
	s.active = nil
	s.currentBid = 0
	s.currentBidder = -1
	s.rebidder = -1
	s.awarded = false
	s.biddingClosed = false
	s.cd = countdown{gen: s.cd.gen}
}

// --- Countdown ---

// armCountdown readies a countdown at full duration without running it.
func (s *Session) armCountdown(element string, seconds int) {
	s.cd = countdown{
		element:   element,
		remaining: seconds,
		gen:       s.cd.gen + 1,
	}
}

func (s *Session) startCountdown(element string) error {
	if s.cd.element != element || s.cd.running {
		return fmt.Errorf("start countdown: %w", ErrNoCountdown)
	}
	s.cd.running = true
	s.cd.paused = false
	s.cd.gen++
	s.pub.PublishTimer(s.cd.element, s.cd.remaining)
	return nil
}

func (s *Session) stopCountdown() {
	s.cd.running = false
	s.cd.paused = false
	s.cd.gen++
}

// Tick advances the running countdown by one second. The generation token
// must match the one handed out when the countdown (re)started; ticks from
// a cancelled or superseded countdown are discarded.
func (s *Session) Tick(gen uint64) {
	if !s.cd.running || gen != s.cd.gen {
		return
	}

	s.cd.remaining--
	s.pub.PublishTimer(s.cd.element, s.cd.remaining)

	if s.cd.remaining > 0 {
		return
	}

	element := s.cd.element
	s.stopCountdown()

	switch element {
	case bidTimerElement:
		s.closeBidding()
	case answerTimerElement, rebidTimerElement:
		// Expiry only freezes the countdown; the operator judges or
		// picks manually. Publish so viewers see the frozen zero.
		s.publishState()
	}
}

// PauseCountdown freezes the running countdown, keeping the exact remaining
// time. Bid and answer state are untouched.
func (s *Session) PauseCountdown() error {
	if !s.cd.running {
		return fmt.Errorf("pause: %w", ErrNoCountdown)
	}
	s.cd.running = false
	s.cd.paused = true
	s.cd.gen++
	s.publishState()
	return nil
}

// ResumeCountdown restarts a paused countdown from the recorded remaining
// time, with no drift.
func (s *Session) ResumeCountdown() error {
	if !s.cd.paused {
		return fmt.Errorf("resume: %w", ErrNoCountdown)
	}
	s.cd.paused = false
	s.cd.running = true
	s.cd.gen++
	s.pub.PublishTimer(s.cd.element, s.cd.remaining)
	s.publishState()
	return nil
}
