package wake

import (
	"fmt"
	"strings"
)

// ContentFilter is the per-action policy gate. A rejected action becomes a
// skip with the rejection reason folded into its reasoning, so one bad
// action never discards the rest of the batch.
type ContentFilter struct {
	maxLength   int
	bannedTerms []string
}

func NewContentFilter(maxLength int, bannedTerms []string) *ContentFilter {
	if maxLength <= 0 {
		maxLength = 4000
	}
	lowered := make([]string, 0, len(bannedTerms))
	for _, term := range bannedTerms {
		trimmed := strings.ToLower(strings.TrimSpace(term))
		if trimmed != "" {
			lowered = append(lowered, trimmed)
		}
	}
	return &ContentFilter{maxLength: maxLength, bannedTerms: lowered}
}

func (f *ContentFilter) Apply(actions []AgentAction) []AgentAction {
	filtered := make([]AgentAction, 0, len(actions))
	for _, action := range actions {
		if violation := f.check(action); violation != nil {
			rejected := AgentAction{Type: ActionSkip, Reasoning: violation.Error()}
			if action.Reasoning != "" {
				rejected.Reasoning = action.Reasoning + " [" + violation.Error() + "]"
			}
			filtered = append(filtered, rejected)
			continue
		}
		filtered = append(filtered, action)
	}
	return filtered
}

func (f *ContentFilter) check(action AgentAction) *ContentPolicyViolation {
	if action.Type != ActionPost && action.Type != ActionReply {
		return nil
	}
	content := strings.TrimSpace(action.Content)
	if content == "" {
		return &ContentPolicyViolation{Reason: fmt.Sprintf("%s requires non-empty content", action.Type)}
	}
	if len(content) > f.maxLength {
		return &ContentPolicyViolation{Reason: fmt.Sprintf("content length %d exceeds maximum %d", len(content), f.maxLength)}
	}
	lowered := strings.ToLower(content)
	for _, term := range f.bannedTerms {
		if strings.Contains(lowered, term) {
			return &ContentPolicyViolation{Reason: "content contains a disallowed term"}
		}
	}
	return nil
}
