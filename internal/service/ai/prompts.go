package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/model/preset"
)

const interviewerPersona = `You are a calm, precise technical interviewer. You speak in short spoken sentences because everything you write is read aloud to the candidate.`

const questionsInstruction = `Write the opening questions for a technical interview.
Return only one JSON object of the form {"questions": ["...", "..."]} with exactly %d entries and nothing else.
Each question must be self-contained, answerable out loud in a few minutes, and ordered from warm-up to hardest.`

const followupInstruction = `Decide whether the candidate's latest answer deserves one more probing follow-up question.
Return only one JSON object of the form {"question": "...", "isThisTheEnd": false}.
Set isThisTheEnd to true and leave question empty when the topic is exhausted or the candidate clearly cannot go further.
Never repeat a follow-up that was already asked.`

const clarifyInstruction = `The candidate did not understand your last prompt and asked for clarification.
Rephrase the prompt more simply or give a small hint, without revealing the answer.
Reply with the rephrased prompt only, in at most three sentences.`

const evaluateInstruction = `Grade the finished interview transcript.
Return only one JSON object of the form {"score": 0, "feedback": "..."} where score is an integer from 0 to 100 and feedback is two or three sentences addressed to the candidate.`

// PromptBuilder 负责拼装各个链路的 system / query 文本
type PromptBuilder struct{}

// NewPromptBuilder returns the default prompt builder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

func (pb *PromptBuilder) system(instruction string, p *preset.Preset) string {
	var b strings.Builder
	b.WriteString(interviewerPersona)
	if p != nil {
		b.WriteString("\n\nInterview: ")
		b.WriteString(p.Title)
		if p.Level != "" {
			fmt.Fprintf(&b, " (%s level)", p.Level)
		}
		if len(p.Topics) > 0 {
			b.WriteString("\nTopics: ")
			b.WriteString(strings.Join(p.Topics, ", "))
		}
		if hint := strings.TrimSpace(p.PromptHint); hint != "" {
			b.WriteString("\nGuidance: ")
			b.WriteString(hint)
		}
	}
	b.WriteString("\n\n")
	b.WriteString(instruction)
	return b.String()
}

// QuestionsPrompt builds the prompts for a fresh question set.
func (pb *PromptBuilder) QuestionsPrompt(p preset.Preset) (string, string) {
	system := pb.system(fmt.Sprintf(questionsInstruction, p.QuestionCount), &p)
	query := fmt.Sprintf("Generate %d questions for the %q interview.", p.QuestionCount, p.Name)
	if p.Description != "" {
		query += "\nDescription: " + p.Description
	}
	return system, query
}

// FollowupPrompt 包含主问题、候选人回答以及本题已有的追问链
func (pb *PromptBuilder) FollowupPrompt(req interview.FollowupRequest) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Main question %d: %s\n", req.QuestionIndex, req.Question)
	writeAnswer(&b, "Candidate answer", req.Answer)
	for i, exchange := range req.Followups {
		fmt.Fprintf(&b, "\nFollow-up %d: %s\n", i+1, exchange.Question)
		fmt.Fprintf(&b, "Candidate reply: %s\n", orPlaceholder(exchange.Answer))
	}
	if req.ActivePrompt != "" && req.ActivePrompt != req.Question {
		fmt.Fprintf(&b, "\nThe prompt currently on screen is: %s\n", req.ActivePrompt)
	}
	return pb.system(followupInstruction, nil), b.String()
}

func (pb *PromptBuilder) ClarifyPrompt(activePrompt, reply string) (string, string) {
	query := fmt.Sprintf("Your prompt was: %s\nThe candidate said: %s", activePrompt, reply)
	return pb.system(clarifyInstruction, nil), query
}

func (pb *PromptBuilder) EvaluatePrompt(p *preset.Preset, answers []interview.QuestionAnswer) (string, string) {
	var b strings.Builder
	if len(answers) == 0 {
		b.WriteString("The candidate left before answering any question.")
	}
	for _, qa := range answers {
		fmt.Fprintf(&b, "Question %d: %s\n", qa.QuestionIndex, qa.Question)
		writeAnswer(&b, "Answer", qa.Answer)
		for _, exchange := range qa.Followups {
			fmt.Fprintf(&b, "  Follow-up: %s\n  Reply: %s\n", exchange.Question, orPlaceholder(exchange.Answer))
		}
		b.WriteString("\n")
	}
	return pb.system(evaluateInstruction, p), b.String()
}

func writeAnswer(b *strings.Builder, label string, answer interview.Answer) {
	fmt.Fprintf(b, "%s: %s\n", label, orPlaceholder(answer.Content))
	if code := strings.TrimSpace(answer.Code); code != "" {
		fmt.Fprintf(b, "Code submitted:\n%s\n", code)
	}
	if answer.Whiteboard != "" {
		b.WriteString("(The candidate also drew a whiteboard diagram.)\n")
	}
}

func orPlaceholder(text string) string {
	if strings.TrimSpace(text) == "" {
		return "(no answer)"
	}
	return text
}
