package ai

import (
	"regexp"
	"sort"
	"strings"
)

// Rule is one pattern the fallback responder tries. Higher priority wins;
// equal priorities keep declaration order.
type Rule struct {
	Name     string
	Priority int
	Pattern  *regexp.Regexp
	Respond  func(body string) string
}

// Fallback is the deterministic local responder. It depends on nothing
// external and always produces a reply: the catch-all default fires when no
// rule matches.
type Fallback struct {
	rules        []Rule
	defaultReply string
}

func NewFallback(rules []Rule, defaultReply string) *Fallback {
	if defaultReply == "" {
		defaultReply = "I can't reach my full capabilities right now, but I'm still here. Could you rephrase or try again in a moment?"
	}

	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	return &Fallback{rules: ordered, defaultReply: defaultReply}
}

func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "ping",
			Priority: 100,
			Pattern:  regexp.MustCompile(`(?i)^\s*ping[\s!?.]*$`),
			Respond:  func(string) string { return "pong" },
		},
		{
			Name:     "greeting",
			Priority: 50,
			Pattern:  regexp.MustCompile(`(?i)\b(hello|hi|hey|good (morning|afternoon|evening))\b`),
			Respond:  func(string) string { return "Hello! How can I help you today?" },
		},
		{
			Name:     "thanks",
			Priority: 50,
			Pattern:  regexp.MustCompile(`(?i)\b(thanks|thank you|thx)\b`),
			Respond:  func(string) string { return "You're welcome!" },
		},
		{
			Name:     "help",
			Priority: 40,
			Pattern:  regexp.MustCompile(`(?i)\b(help|how do i|what can you do)\b`),
			Respond: func(string) string {
				return "You can ask me questions in this room, or upload documents and ask about their contents."
			},
		},
		{
			Name:     "farewell",
			Priority: 30,
			Pattern:  regexp.MustCompile(`(?i)\b(bye|goodbye|see you|later)\b`),
			Respond:  func(string) string { return "Goodbye! Come back anytime." },
		},
	}
}

// Reply returns the reply of the highest-priority matching rule, or the
// default reply when nothing matches.
func (f *Fallback) Reply(body string) string {
	trimmed := strings.TrimSpace(body)
	for _, rule := range f.rules {
		if rule.Pattern.MatchString(trimmed) {
			return rule.Respond(trimmed)
		}
	}
	return f.defaultReply
}
