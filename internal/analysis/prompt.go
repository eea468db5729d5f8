package analysis

import (
	"strings"
)

// BuildSystemPrompt composes the system message for a palm reading.
func BuildSystemPrompt(hand string) string {
	hand = strings.TrimSpace(hand)
	if hand == "" {
		hand = "right"
	}
	parts := []string{
		"You are an experienced palm reader. Return ONLY JSON that matches the provided JSON Schema.",
		"The photo shows the " + hand + " hand; set 'hand' to \"" + hand + "\".",
		"Describe the life line, heart line and head line in two or three sentences each, based on what is visible: length, depth, curvature, breaks and branches.",
		"Include 'fate_line' only if a fate line is visible.",
		"Include 'mounts' only for mounts you can judge (venus, jupiter, saturn, apollo, mercury, luna, mars), one sentence each.",
		"'personality' is a short paragraph; 'summary' is at most three sentences a reader can take away.",
		"Set 'confidence' between 0 and 1 reflecting image quality and how clearly the lines are visible.",
		"Readings are for entertainment; avoid medical, legal or financial predictions.",
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the filename hint that accompanies the attached image.
func BuildUserPrompt(req AnalyzeRequest) string {
	var b strings.Builder
	if f := strings.TrimSpace(req.FilenameHint); f != "" {
		b.WriteString("Filename: ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("An image of the palm is attached. Read the major lines and mounts from it.")
	return b.String()
}

// BuildAnswerSystemPrompt frames follow-up questions around a stored reading.
func BuildAnswerSystemPrompt(req AnswerRequest) string {
	parts := []string{
		"You are an experienced palm reader answering a follow-up question about a reading you already gave.",
		"Answer in plain prose, at most one short paragraph, grounded in the reading below.",
		"Readings are for entertainment; avoid medical, legal or financial predictions.",
	}
	if h := strings.TrimSpace(req.Hand); h != "" {
		parts = append(parts, "The reading is of the "+h+" hand.")
	}
	parts = append(parts, "Reading JSON:\n"+string(req.Reading))
	return strings.Join(parts, " ")
}
