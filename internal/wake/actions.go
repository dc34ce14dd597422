package wake

import (
	"encoding/json"
	"strings"
)

type decisionPayload struct {
	Actions        []AgentAction `json:"actions"`
	ThoughtProcess string        `json:"thought_process"`
}

// ParseActions turns a raw model response into a validated action list. It
// never fails: anything that cannot be read as structured actions degrades
// to a single skip with the raw text preserved as the thought process.
func ParseActions(raw string) ([]AgentAction, string) {
	cleaned := stripFences(raw)

	var payload decisionPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		// Some models answer with a bare array of actions.
		var bare []AgentAction
		if err := json.Unmarshal([]byte(cleaned), &bare); err != nil {
			return []AgentAction{skipAction("response was not valid JSON")}, raw
		}
		payload.Actions = bare
	}

	valid := make([]AgentAction, 0, len(payload.Actions))
	for _, action := range payload.Actions {
		if validated, ok := validateAction(action); ok {
			valid = append(valid, validated)
		}
	}
	if len(valid) == 0 {
		thought := payload.ThoughtProcess
		if thought == "" {
			thought = raw
		}
		return []AgentAction{skipAction("no valid actions in response")}, thought
	}
	return valid, payload.ThoughtProcess
}

func validateAction(action AgentAction) (AgentAction, bool) {
	action.Type = ActionType(strings.TrimSpace(strings.ToLower(string(action.Type))))
	switch action.Type {
	case ActionPost:
		return action, strings.TrimSpace(action.Content) != ""
	case ActionReply:
		return action, strings.TrimSpace(action.Content) != "" && action.TargetPostID != ""
	case ActionUpvote, ActionDownvote:
		return action, action.TargetPostID != ""
	case ActionJoinCommunity:
		return action, action.CommunityID != ""
	case ActionSkip:
		return action, true
	default:
		return action, false
	}
}

func skipAction(reason string) AgentAction {
	return AgentAction{Type: ActionSkip, Reasoning: reason}
}

// stripFences removes a single markdown code fence wrapper and trims to the
// outermost JSON value, tolerating prose before and after.
func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.IndexAny(cleaned, "{[")
	if start < 0 {
		return cleaned
	}
	var end int
	if cleaned[start] == '{' {
		end = strings.LastIndex(cleaned, "}")
	} else {
		end = strings.LastIndex(cleaned, "]")
	}
	if end <= start {
		return cleaned
	}
	return cleaned[start : end+1]
}
