// Package pattern matches player-submitted weave patterns against an
// encounter's weakness pattern.
//
// The matcher is a permissive substring heuristic, not a boolean expression
// parser. Rules are tried in order:
//
//  1. normalized equality
//  2. "A AND B": the attempt contains every operand
//  3. "A OR B": the attempt contains any operand
//  4. "NOT A": the attempt contains the word "not" and A (containment, not negation)
//  5. equality, or the attempt (longer than 3 chars) appears inside the pattern
package pattern

import (
	"slices"
	"strings"
)

const (
	opAnd = " and "
	opOr  = " or "
	opNot = "not"
)

// Normalize lower-cases s and collapses runs of whitespace to single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Matches reports whether attempt satisfies correct.
func Matches(attempt, correct string) bool {
	user := Normalize(attempt)
	want := Normalize(correct)

	if user == want {
		return true
	}

	switch {
	case strings.Contains(want, opAnd):
		return containsAll(user, operands(want, opAnd))
	case strings.Contains(want, opOr):
		return containsAny(user, operands(want, opOr))
	case hasNot(want):
		// Deliberately a containment check: "not x" matches any attempt
		// mentioning both "not" and "x".
		negated := strings.TrimSpace(strings.Replace(" "+want+" ", " "+opNot+" ", " ", 1))
		return strings.Contains(user, opNot) && strings.Contains(user, negated)
	}

	return len(user) > 3 && strings.Contains(want, user)
}

// hasNot reports whether s contains "not" as a whole word.
func hasNot(s string) bool {
	return slices.Contains(strings.Fields(s), opNot)
}

func operands(s, op string) []string {
	var out []string
	for _, part := range strings.Split(s, op) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsAll(s string, parts []string) bool {
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

func containsAny(s string, parts []string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
