// Package scoring turns a lead submission into a 0-100 score and picks the
// email sequence that fits it.
package scoring

import "strings"

// Score boundaries. The admin dashboard buckets stored scores with the same
// cutoffs, so change them here only.
const (
	BaseScore  = 50
	MinScore   = 0
	MaxScore   = 100
	HotCutoff  = 75
	WarmCutoff = 50
)

// Category is the sales temperature of a lead.
type Category string

const (
	CategoryHot  Category = "hot"
	CategoryWarm Category = "warm"
	CategoryCold Category = "cold"
)

// Sequence names the follow-up email sequence a lead receives.
type Sequence string

const (
	SequenceHotLead         Sequence = "hot-lead"
	SequenceStandardWelcome Sequence = "standard-welcome"
	SequenceNurture         Sequence = "nurture"
)

// Input is the subset of a submission the rules look at.
type Input struct {
	Service       string
	Budget        string
	Timeline      string
	Company       string
	Phone         string
	MessageLength int
}

// Rule adds Delta to the score when Match reports true.
type Rule struct {
	Name  string
	Delta int
	Match func(Input) bool
}

// DetailedMessageLength is the message length that counts as a detailed brief.
const DetailedMessageLength = 150

// Rules is the business weighting table, applied in order.
var Rules = []Rule{
	{Name: "budget_enterprise", Delta: 30, Match: fieldIs(func(in Input) string { return in.Budget }, "enterprise")},
	{Name: "budget_high", Delta: 20, Match: fieldIs(func(in Input) string { return in.Budget }, "high")},
	{Name: "budget_medium", Delta: 10, Match: fieldIs(func(in Input) string { return in.Budget }, "medium")},
	{Name: "budget_low", Delta: -10, Match: fieldIs(func(in Input) string { return in.Budget }, "low")},
	{Name: "timeline_urgent", Delta: 15, Match: fieldIs(func(in Input) string { return in.Timeline }, "urgent")},
	{Name: "timeline_soon", Delta: 10, Match: fieldIs(func(in Input) string { return in.Timeline }, "soon")},
	{Name: "timeline_exploring", Delta: -10, Match: fieldIs(func(in Input) string { return in.Timeline }, "exploring")},
	{Name: "has_company", Delta: 10, Match: func(in Input) bool { return strings.TrimSpace(in.Company) != "" }},
	{Name: "has_phone", Delta: 5, Match: func(in Input) bool { return strings.TrimSpace(in.Phone) != "" }},
	{Name: "build_service", Delta: 5, Match: fieldIs(func(in Input) string { return in.Service }, "web-development", "mobile-app", "ai-automation", "ecommerce")},
	{Name: "detailed_message", Delta: 5, Match: func(in Input) bool { return in.MessageLength >= DetailedMessageLength }},
}

// Result is the outcome of scoring one submission.
type Result struct {
	Score    int      `json:"score"`
	Category Category `json:"category"`
	Sequence Sequence `json:"sequence"`
	Applied  []string `json:"applied,omitempty"`
}

// Score applies Rules to in. It has no side effects and is deterministic.
func Score(in Input) Result {
	return ScoreWith(Rules, in)
}

// ScoreWith applies a custom rule table.
func ScoreWith(rules []Rule, in Input) Result {
	score := BaseScore
	var applied []string
	for _, rule := range rules {
		if rule.Match != nil && rule.Match(in) {
			score += rule.Delta
			applied = append(applied, rule.Name)
		}
	}
	score = Clamp(score)
	category := CategoryFor(score)
	return Result{
		Score:    score,
		Category: category,
		Sequence: SequenceFor(category),
		Applied:  applied,
	}
}

// Clamp bounds score to [MinScore, MaxScore].
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// CategoryFor buckets a score using HotCutoff and WarmCutoff.
func CategoryFor(score int) Category {
	switch {
	case score >= HotCutoff:
		return CategoryHot
	case score >= WarmCutoff:
		return CategoryWarm
	default:
		return CategoryCold
	}
}

// SequenceFor maps a category to its email sequence.
func SequenceFor(c Category) Sequence {
	switch c {
	case CategoryHot:
		return SequenceHotLead
	case CategoryWarm:
		return SequenceStandardWelcome
	default:
		return SequenceNurture
	}
}

func fieldIs(get func(Input) string, values ...string) func(Input) bool {
	return func(in Input) bool {
		v := strings.ToLower(strings.TrimSpace(get(in)))
		for _, want := range values {
			if v == want {
				return true
			}
		}
		return false
	}
}
