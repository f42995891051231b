package pattern

import "testing"

func TestNormalize(t *testing.T) {
	got := Normalize("  Memory\t AND\n\nClear ")
	if got != "memory and clear" {
		t.Errorf("Normalize() = %q, want %q", got, "memory and clear")
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		attempt string
		correct string
		want    bool
	}{
		{name: "exact and", attempt: "Memory AND Clear", correct: "Memory AND Clear", want: true},
		{name: "and missing operand", attempt: "Clear", correct: "Memory AND Clear", want: false},
		{name: "and operands in any order", attempt: "clear the memory", correct: "Memory AND Clear", want: true},
		{name: "or with both", attempt: "Memory Clear", correct: "Memory OR Clear", want: true},
		{name: "or with one", attempt: "flush memory", correct: "Memory OR Clear", want: true},
		{name: "or with none", attempt: "logic", correct: "Memory OR Clear", want: false},
		{name: "exact not", attempt: "NOT Logic", correct: "NOT Logic", want: true},
		{name: "not without keyword", attempt: "Logic", correct: "NOT Logic", want: false},
		{name: "not is containment", attempt: "logic is not absent", correct: "NOT Logic", want: true},
		{name: "not inside a word is not an operator", attempt: "compute", correct: "Cannot Compute", want: true},
		{name: "not as a later word", attempt: "not silence", correct: "Sound NOT Silence", want: false},
		{name: "not as a later word with operand", attempt: "not sound silence", correct: "Sound NOT Silence", want: true},
		{name: "case and whitespace", attempt: "  memory   and CLEAR ", correct: "Memory AND Clear", want: true},
		{name: "fallback equality", attempt: "Entropy", correct: "entropy", want: true},
		{name: "fallback substring", attempt: "entro", correct: "Entropy Spiral", want: true},
		{name: "fallback too short", attempt: "ent", correct: "Entropy Spiral", want: false},
		{name: "fallback superstring", attempt: "entropy spiral now", correct: "Entropy Spiral", want: false},
		{name: "and takes precedence over or", attempt: "a", correct: "a AND b OR c", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.attempt, tt.correct); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.attempt, tt.correct, got, tt.want)
			}
		})
	}
}
