package agent

import (
	"regexp"
	"strings"
)

// Wire markers of the ReAct text protocol.
const (
	MarkerThought     = "Thought:"
	MarkerAction      = "Action:"
	MarkerActionInput = "Action Input:"
	MarkerObservation = "Observation:"
	MarkerFinalAnswer = "Final Answer:"

	// StopSequence halts generation before the model invents an Observation.
	StopSequence = "\n" + MarkerObservation
)

var (
	actionPattern      = regexp.MustCompile(`(?s)Action\s*\d*\s*:[ \t]*(.*?)\s*Action\s*\d*\s*Input\s*\d*\s*:\s*(.*)`)
	actionOnlyPattern  = regexp.MustCompile(`(?m)^\s*Action\s*\d*\s*:`)
	finalAnswerPattern = regexp.MustCompile(`(?i)Final\s+Answer\s*:`)
	observationPattern = regexp.MustCompile(`(?m)^\s*Observation\s*\d*\s*:`)
	thoughtPattern     = regexp.MustCompile(`(?s)^\s*(?:Thought\s*:)?\s*(.*?)\s*(?:Action\s*\d*\s*:|Final\s+Answer\s*:|$)`)
)

type stepKind int

const (
	stepInvalid stepKind = iota
	stepTool
	stepFinal
)

// step is one parsed model completion.
type step struct {
	kind    stepKind
	thought string
	tool    string
	input   string
	// answer is the text after the final-answer marker.
	answer string
	// text is the part of the completion kept in the transcript.
	text string
	// problem explains an invalid step.
	problem string
}

// parseStep reads one completion. A tool request wins over a final answer
// that follows it, and anything after the first Observation marker is
// discarded as invented.
func parseStep(text string) step {
	if strings.TrimSpace(text) == "" {
		return step{kind: stepInvalid, problem: "empty response"}
	}
	if loc := observationPattern.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	thought := ""
	if m := thoughtPattern.FindStringSubmatch(text); m != nil {
		thought = m[1]
	}

	finalAt := -1
	if loc := finalAnswerPattern.FindStringIndex(text); loc != nil {
		finalAt = loc[0]
	}
	m := actionPattern.FindStringSubmatchIndex(text)
	if m != nil && (finalAt < 0 || m[0] < finalAt) {
		tool := strings.TrimSpace(text[m[2]:m[3]])
		input := text[m[4]:m[5]]
		if finalAt > m[4] {
			input = text[m[4]:finalAt]
		}
		input = cleanInput(input)
		if isFinalAnswerAction(tool) {
			// "Action: Final Answer" followed by the answer as its input.
			return step{kind: stepFinal, thought: thought, answer: input, text: text}
		}
		if input == "" {
			return step{kind: stepInvalid, thought: thought, text: text, problem: "missing Action Input"}
		}
		kept := strings.TrimRight(text[:m[5]], " \t\n")
		if finalAt > m[4] {
			kept = strings.TrimRight(text[:finalAt], " \t\n")
		}
		return step{kind: stepTool, thought: thought, tool: tool, input: input, text: kept}
	}

	if finalAt >= 0 {
		loc := finalAnswerPattern.FindStringIndex(text)
		return step{
			kind:    stepFinal,
			thought: thought,
			answer:  strings.TrimSpace(text[loc[1]:]),
			text:    text,
		}
	}
	if actionOnlyPattern.MatchString(text) {
		return step{kind: stepInvalid, thought: thought, text: text, problem: "missing Action Input after Action"}
	}
	return step{kind: stepInvalid, thought: thought, text: text, problem: "missing Action or Final Answer"}
}

func isFinalAnswerAction(tool string) bool {
	t := strings.ToLower(strings.Join(strings.Fields(tool), " "))
	return t == "final answer" || t == "final_answer"
}

// cleanInput trims an Action Input and removes one pair of quotes wrapping
// the whole of it.
func cleanInput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' && !strings.Contains(s[1:len(s)-1], `"`) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
