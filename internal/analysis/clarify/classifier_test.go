package clarify

import (
	"strings"
	"testing"
)

func TestIsClarifying(t *testing.T) {
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"whitespace", "   \n\t", false},
		{"phrase", "Sorry, I don't know what a mutex is", true},
		{"curlyApostrophe", "I don’t understand the question", true},
		{"phraseUppercase", "COULD YOU EXPLAIN THAT", true},
		{"substringRecall", "I would repeat the request with backoff", true},
		{"shortQuestion", "how deep should I go?", true},
		{"shortQuestionNoMark", "how deep should I go", false},
		{"questionWrongOpener", "so you want the full design?", false},
		{"plainAnswer", "I would use a buffered channel and a worker pool.", false},
		{"longQuestion", "how " + strings.Repeat("x", 120) + "?", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsClarifying(tc.text); got != tc.want {
				t.Fatalf("IsClarifying(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}
