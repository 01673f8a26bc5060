package game

// Team is one competing team's ledger entry: gold for bidding, points for
// scoring, and the bookkeeping behind suspensions and the end-of-game
// participation penalty. Points are fractional because a correct re-answer
// pays out 80% of the question value.
type Team struct {
	ID                     int            `json:"id"`
	Name                   string         `json:"name"`
	Gold                   int            `json:"gold"`
	Points                 float64        `json:"points"`
	BidHistory             map[string]int `json:"bidHistory"`
	ConsecutiveWrongStreak int            `json:"consecutiveWrongStreak"`
	Suspended              bool           `json:"suspended"`
	SuspendedCount         int            `json:"suspendedCount"`
}

const (
	suspensionStreak    = 3
	suspensionQuestions = 2
	noBidderPenalty     = 5
	categoryPenalty     = 50
	reanswerPayout      = 0.8
)

func newTeams(cfg Config, names []string) []*Team {
	teams := make([]*Team, len(cfg.TeamNames))
	for i := range teams {
		name := cfg.TeamNames[i]
		if i < len(names) && names[i] != "" {
			name = names[i]
		}

		history := make(map[string]int, len(cfg.Categories))
		for _, cat := range cfg.Categories {
			history[cat] = 0
		}

		teams[i] = &Team{
			ID:         i,
			Name:       name,
			Gold:       cfg.InitialGold,
			BidHistory: history,
		}
	}
	return teams
}

// recordBid counts one accepted bid toward the participation history.
// Called exactly once per accepted bid, late bids included.
func (t *Team) recordBid(category string) {
	t.BidHistory[category]++
}

// applyAnswerOutcome settles a first answer. A correct answer pays the full
// question value and resets every team's wrong streak. A wrong answer costs
// the full value and extends the answering team's streak; reaching three in
// a row suspends them for two questions (the streak itself is kept — it only
// clears on a later correct answer). Returns whether this outcome triggered
// a suspension.
func applyAnswerOutcome(teams []*Team, teamID int, correct bool, basePoints int) bool {
	team := teams[teamID]
	suspendedNow := false

	if correct {
		team.Points += float64(basePoints)
		team.ConsecutiveWrongStreak = 0
	} else {
		team.Points -= float64(basePoints)
		team.ConsecutiveWrongStreak++
		if team.ConsecutiveWrongStreak >= suspensionStreak && !team.Suspended {
			team.Suspended = true
			team.SuspendedCount = suspensionQuestions
			suspendedNow = true
		}
	}

	for _, other := range teams {
		if other.ID != teamID {
			other.ConsecutiveWrongStreak = 0
		}
	}

	return suspendedNow
}

// applyReAnswerOutcome settles a thrown question. Correct pays 80% of the
// question value, wrong costs the full value. Re-answers never touch wrong
// streaks or suspensions; only first answers do.
func applyReAnswerOutcome(team *Team, correct bool, basePoints int) float64 {
	if correct {
		gained := reanswerPayout * float64(basePoints)
		team.Points += gained
		return gained
	}
	team.Points -= float64(basePoints)
	return float64(basePoints)
}

// expireSuspensions burns one question off every active suspension. Runs
// exactly once per finalized question. Returns the teams whose suspension
// just ended.
func expireSuspensions(teams []*Team) []*Team {
	var freed []*Team
	for _, team := range teams {
		if !team.Suspended {
			continue
		}
		team.SuspendedCount--
		if team.SuspendedCount <= 0 {
			team.Suspended = false
			team.SuspendedCount = 0
			freed = append(freed, team)
		}
	}
	return freed
}

// applyParticipationPenalty deducts 50 points per category a team never bid
// in, cumulatively. One-shot, at explicit game end.
func applyParticipationPenalty(teams []*Team, categories []string) {
	for _, team := range teams {
		missed := 0
		for _, cat := range categories {
			if team.BidHistory[cat] == 0 {
				missed++
			}
		}
		team.Points -= float64(missed * categoryPenalty)
	}
}
