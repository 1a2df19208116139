package ai

import (
	"regexp"
	"testing"
)

func TestFallbackPingAlwaysAnswersPong(t *testing.T) {
	f := NewFallback(DefaultRules(), "")

	for _, body := range []string{"ping", "  ping  ", "PING", "ping!"} {
		if got := f.Reply(body); got != "pong" {
			t.Fatalf("Reply(%q) = %q, want pong", body, got)
		}
	}
}

func TestFallbackDefaultWhenNothingMatches(t *testing.T) {
	f := NewFallback(DefaultRules(), "custom default")

	if got := f.Reply("what is the airspeed velocity of an unladen swallow"); got != "custom default" {
		t.Fatalf("expected the default reply, got %q", got)
	}
}

func TestFallbackHigherPriorityWins(t *testing.T) {
	rules := []Rule{
		{
			Name:     "low",
			Priority: 10,
			Pattern:  regexp.MustCompile(`hello`),
			Respond:  func(string) string { return "low" },
		},
		{
			Name:     "high",
			Priority: 90,
			Pattern:  regexp.MustCompile(`hello`),
			Respond:  func(string) string { return "high" },
		},
	}

	f := NewFallback(rules, "")
	if got := f.Reply("hello there"); got != "high" {
		t.Fatalf("expected the high-priority rule, got %q", got)
	}
}

func TestFallbackEqualPriorityKeepsDeclarationOrder(t *testing.T) {
	rules := []Rule{
		{
			Name:     "first",
			Priority: 50,
			Pattern:  regexp.MustCompile(`hello`),
			Respond:  func(string) string { return "first" },
		},
		{
			Name:     "second",
			Priority: 50,
			Pattern:  regexp.MustCompile(`hello`),
			Respond:  func(string) string { return "second" },
		},
	}

	f := NewFallback(rules, "")
	if got := f.Reply("hello"); got != "first" {
		t.Fatalf("equal priorities should keep declaration order, got %q", got)
	}
}

func TestFallbackIsDeterministic(t *testing.T) {
	f := NewFallback(DefaultRules(), "")

	first := f.Reply("hey, thanks for the help")
	for i := 0; i < 10; i++ {
		if got := f.Reply("hey, thanks for the help"); got != first {
			t.Fatalf("same input produced different replies: %q vs %q", first, got)
		}
	}
}
