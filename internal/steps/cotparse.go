package steps

import "regexp"

var (
	thoughtPattern = regexp.MustCompile(`(?s)\[思考\](.*?)\[/思考\]`)
	answerPattern  = regexp.MustCompile(`(?s)\[最終回答\](.*)$`)
)

const extractionFailedThought = "(extraction failed)"

// parseDeepThought implements the strict [思考]…[/思考][最終回答]… format
// required of execute_deep_thought replies. When neither tag is present —
// a model that ignored the formatting instruction entirely — the whole
// reply is taken as the answer rather than discarded.
func parseDeepThought(reply string) (content, thought string) {
	thoughtMatch := thoughtPattern.FindStringSubmatch(reply)
	answerMatch := answerPattern.FindStringSubmatch(reply)

	if thoughtMatch != nil {
		thought = thoughtMatch[1]
	} else {
		thought = extractionFailedThought
	}

	// Whenever the answer tag is absent — with or without a thought tag
	// present — the whole reply is the answer.
	if answerMatch == nil {
		return reply, thought
	}
	return answerMatch[1], thought
}
