package conversation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/rfqrank/internal/ai"
)

const (
	locationPrompt  = "Thanks! In which city and country are you looking for suppliers?"
	rephraseMessage = "I couldn't generate questions from your description. Could you rephrase what you need in more detail?"
	selectMessage   = "Here is your RFQ email. I found %d matching suppliers; pick the ones that should receive it."
	noSupplierMsg   = "Here is your RFQ email. I couldn't find matching suppliers, so you can send it to suppliers you already know."
	pendingMessage  = "Your RFQ email is ready. Pick the suppliers that should receive it, or start over."
	resetMessage    = "Conversation reset."
)

const questionsPromptTemplate = `You help a buyer prepare a request for quotation (RFQ).
The buyer needs: %s
Supplier location: %s

Write between 3 and 5 short questions that a supplier would need answered to quote a price
(quantities, sizes, materials, deadlines, budget). Answer with a JSON array of strings only.`

const clarifyPromptTemplate = `You help a buyer prepare a request for quotation (RFQ).
The buyer needs: %s
Question: %s
Buyer's answer: %s

If the answer is clear enough for a supplier to quote, reply with NONE.
Otherwise reply with exactly one short follow-up question and nothing else.`

const emailPromptTemplate = `Write a concise, professional RFQ email to suppliers.
The buyer needs: %s
Delivery location: %s

Details from the buyer:
%s

Ask for unit price, total price, shipping cost, lead time in days and warranty.
Reply with the email body only, without a subject line.`

var (
	listMarker = regexp.MustCompile(`^\s*(?:[-*]|\d+[.)])\s*`)
	questionRe = regexp.MustCompile(`^Question (\d+)(?: of (\d+))?: (.*)$`)
	planLineRe = regexp.MustCompile(`^(\d+)\. (.*)$`)
)

// IsUsableQuestion reports whether q is worth asking: longer than 10 characters
// once trimmed, and an actual question.
func IsUsableQuestion(q string) bool {
	q = strings.TrimSpace(q)
	return utf8.RuneCountInString(q) > 10 && strings.Contains(q, "?")
}

// UsableQuestions parses model text into questions and keeps the usable ones. The
// text may be a JSON array, an object with a "questions" array, or a plain list.
func UsableQuestions(text string) []string {
	var out []string
	for _, q := range parseQuestions(text) {
		if IsUsableQuestion(q) {
			out = append(out, strings.Join(strings.Fields(q), " "))
		}
	}
	return out
}

func parseQuestions(text string) []string {
	for _, raw := range ai.JSONCandidates(text) {
		var list []any
		if json.Unmarshal([]byte(raw), &list) == nil {
			if qs := stringsOf(list); len(qs) > 0 {
				return qs
			}
			continue
		}
		var obj struct {
			Questions []any `json:"questions"`
		}
		if json.Unmarshal([]byte(raw), &obj) == nil {
			if qs := stringsOf(obj.Questions); len(qs) > 0 {
				return qs
			}
		}
	}

	var out []string
	for _, line := range strings.Split(ai.StripCodeFences(text), "\n") {
		if line = strings.TrimSpace(listMarker.ReplaceAllString(line, "")); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func stringsOf(list []any) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		switch q := v.(type) {
		case string:
			out = append(out, q)
		case map[string]any:
			if s, ok := q["question"].(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// formatQuestion renders question i (zero based) for display.
func formatQuestion(i int, questions []string) string {
	return fmt.Sprintf("Question %d of %d: %s", i+1, len(questions), questions[i])
}

// parseQuestionTurn is the inverse of formatQuestion.
func parseQuestionTurn(content string) (index int, text string, ok bool) {
	m := questionRe.FindStringSubmatch(strings.TrimSpace(content))
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, "", false
	}
	return n - 1, m[3], true
}

// formatPlan lists every question of a batch so a transcript can restore them.
func formatPlan(questions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I have %d questions for you:", len(questions))
	for i, q := range questions {
		fmt.Fprintf(&b, "\n%d. %s", i+1, q)
	}
	return b.String()
}

func parsePlan(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if m := planLineRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			out = append(out, m[2])
		}
	}
	return out
}

func questionsPrompt(description, location string) string {
	return fmt.Sprintf(questionsPromptTemplate, description, location)
}

func clarifyPrompt(description, question, answer string) string {
	return fmt.Sprintf(clarifyPromptTemplate, description, question, answer)
}

func emailPrompt(description, location string, questions, answers []string) string {
	var b strings.Builder
	for i, q := range questions {
		a := ""
		if i < len(answers) {
			a = answers[i]
		}
		fmt.Fprintf(&b, "- %s\n  %s\n", q, a)
	}
	return fmt.Sprintf(emailPromptTemplate, description, location, strings.TrimRight(b.String(), "\n"))
}
