package models

// EscalationPayload is the JSON body posted to the escalation webhook. The
// embed layout is accepted by Discord and Slack-compatible incoming hooks.
type EscalationPayload struct {
	Content  string            `json:"content,omitempty"`
	Username string            `json:"username,omitempty"`
	Embeds   []EscalationEmbed `json:"embeds,omitempty"`
	Alert    Alert             `json:"alert"`
}

// EscalationEmbed is one rich message block
type EscalationEmbed struct {
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Color       int                    `json:"color,omitempty"`
	Fields      []EscalationEmbedField `json:"fields,omitempty"`
	Footer      *EscalationFooter      `json:"footer,omitempty"`
	Timestamp   string                 `json:"timestamp,omitempty"`
}

// EscalationEmbedField is a name/value row in an embed
type EscalationEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EscalationFooter is the footer line of an embed
type EscalationFooter struct {
	Text string `json:"text"`
}
