package entities

import "errors"

// Agent is the published agent configuration a widget or phone number resolves to.
type Agent struct {
	ID        string `json:"id" bson:"agent_id"`
	WidgetID  string `json:"widget_id" bson:"widget_id"`
	Name      string `json:"name" bson:"name"`
	Published bool   `json:"published" bson:"published"`
	Greeting  string `json:"greeting,omitempty" bson:"greeting,omitempty"`
	Voice     Voice  `json:"voice" bson:"voice"`
}

// Voice selects the synthesis provider and voice used for an agent.
type Voice struct {
	Provider string `json:"provider,omitempty" bson:"provider,omitempty"`
	VoiceID  string `json:"voice_id,omitempty" bson:"voice_id,omitempty"`
	Language string `json:"language,omitempty" bson:"language,omitempty"`
}

// Validate validates the agent data
func (a *Agent) Validate() error {
	if a.ID == "" {
		return errors.New("agent id is required")
	}
	if a.WidgetID == "" {
		return errors.New("widget id is required")
	}
	return nil
}
