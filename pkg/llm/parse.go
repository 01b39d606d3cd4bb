package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/kairosgraph/kairos/pkg/types"
)

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	thinkTagRe  = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// StripCodeFences returns the content of the first markdown code fence, or
// the input unchanged when no fence is present.
func StripCodeFences(s string) string {
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// StripThinkTags removes <think> blocks some models emit before the answer.
func StripThinkTags(s string) string {
	return thinkTagRe.ReplaceAllString(s, "")
}

// ParseEnvelope turns raw provider output into a validated envelope.
// Markdown fences and think tags are stripped first; malformed JSON gets one
// repair attempt before the response is rejected. Structural violations
// surface as SchemaValidationError, unparseable text as ResponseParseError.
func ParseEnvelope(raw string) (*types.ExtractionEnvelope, error) {
	text := StripCodeFences(StripThinkTags(raw))
	if text == "" {
		return nil, NewLLMError(ResponseParseError, "empty response body")
	}

	var env types.ExtractionEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return nil, WrapLLMError(ResponseParseError, err, "response is not valid JSON and could not be repaired")
		}
		if err := json.Unmarshal([]byte(repaired), &env); err != nil {
			return nil, WrapLLMError(ResponseParseError, err, "repaired response is still not a valid envelope")
		}
	}

	if err := env.Validate(); err != nil {
		return nil, WrapLLMError(SchemaValidationError, err, "envelope failed schema validation")
	}
	return &env, nil
}
