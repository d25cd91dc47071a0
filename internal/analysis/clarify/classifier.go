package clarify

import "strings"

// 命中任一短语即视为请求澄清，宁可多判
var clarifyingPhrases = []string{
	"i don't know",
	"i dont know",
	"what do you mean",
	"can you explain",
	"could you explain",
	"clarify",
	"repeat",
	"elaborate",
	"what is",
	"what are",
	"not sure what",
	"rephrase",
	"don't understand",
	"dont understand",
	"say that again",
	"meaning of",
}

var questionOpeners = []string{
	"what",
	"how",
	"why",
	"when",
	"where",
	"can you",
	"could you",
	"would you",
}

// shortQuestionLimit bounds the length of a reply that is read as a bare
// question back to the interviewer.
const shortQuestionLimit = 100

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

// IsClarifying 判断候选人的回复是否在请求澄清而不是作答。
func IsClarifying(text string) bool {
	normalized := strings.TrimSpace(strings.ToLower(apostrophes.Replace(text)))
	if normalized == "" {
		return false
	}

	for _, phrase := range clarifyingPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}

	if len([]rune(normalized)) >= shortQuestionLimit || !strings.Contains(normalized, "?") {
		return false
	}
	for _, opener := range questionOpeners {
		if strings.HasPrefix(normalized, opener) {
			return true
		}
	}
	return false
}
