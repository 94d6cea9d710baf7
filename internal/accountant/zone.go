package accountant

// BudgetZone grades a user's token spend against a daily limit.
type BudgetZone int

const (
	ZoneGreen BudgetZone = iota
	ZoneYellow
	ZoneOrange
	ZoneRed
)

func (z BudgetZone) String() string {
	switch z {
	case ZoneYellow:
		return "yellow"
	case ZoneOrange:
		return "orange"
	case ZoneRed:
		return "red"
	default:
		return "green"
	}
}

// Zone thresholds as percentages of the daily limit.
const (
	yellowPct = 60
	orangePct = 80
	redPct    = 90
)

// Zone returns the budget zone for the user's running token count
// against dailyLimit. A zero limit always reads green.
func (a *Accountant) Zone(userID string, dailyLimit int) BudgetZone {
	return ZoneFor(a.TokensUsed(userID), dailyLimit)
}

// ZoneFor grades a token count against a daily limit.
func ZoneFor(tokens, dailyLimit int) BudgetZone {
	if dailyLimit == 0 {
		return ZoneGreen
	}

	pct := (tokens * 100) / dailyLimit
	switch {
	case pct >= redPct:
		return ZoneRed
	case pct >= orangePct:
		return ZoneOrange
	case pct >= yellowPct:
		return ZoneYellow
	default:
		return ZoneGreen
	}
}
