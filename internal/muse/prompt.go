package muse

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const systemPrompt = "You help a Dungeons & Dragons DM create or edit creatures. " +
	"Be concise and consistent with 5e.\n\n" +
	"Guidelines:\n" +
	"- pass null instead of empty strings, arrays or objects.\n" +
	"- pass null instead of 0 for movement types the creature does not have."

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textMessage(role, text string) message {
	partType := "input_text"
	if role == "assistant" {
		partType = "output_text"
	}
	return message{Role: role, Content: []contentPart{{Type: partType, Text: text}}}
}

func instructionsPrompt(instructions string) string {
	return "Update the latest stat block following the following instructions:\n\n" +
		"<instructions>\n" + instructions + "\n</instructions>\n\n" +
		"Respond with the updated stat block. " +
		"If a field should not change, use the same value in your response."
}

// buildPrompt lays out the conversation: system guidance, the base stat
// block, each prior revision as a user/assistant pair, then the new
// instructions last.
func buildPrompt(req Request) []message {
	base := "Create or edit a Dungeons & Dragons creature stat block following these instructions:\n\n"
	if hasValue(req.Base) {
		base += fmt.Sprintf("Current creature stat block:\n\n<stat-block>\n%s\n</stat-block>\n", compact(req.Base))
	}

	messages := []message{
		textMessage("system", systemPrompt),
		textMessage("user", base),
	}
	for _, rev := range req.Revisions {
		messages = append(messages,
			textMessage("user", instructionsPrompt(rev.Prompt)),
			textMessage("assistant", compact(rev.StatBlock)),
		)
	}
	return append(messages, textMessage("user", instructionsPrompt(req.Instructions)))
}

func compact(raw json.RawMessage) string {
	buf := bytes.Buffer{}
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
