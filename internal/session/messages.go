// ABOUTME: Wire message definitions for the generation service session
// ABOUTME: JSON envelope plus typed inbound and outbound payloads
package session

// envelope is the top-level wrapper for all session messages.
type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Inbound message types.
const (
	typeSetupComplete  = "setup-complete"
	typeFilteredPrompt = "filtered-prompt"
	typeAudioChunk     = "audio-chunk"
)

// Outbound message types.
const (
	typeSetup               = "setup"
	typePlay                = "play"
	typePause               = "pause"
	typeStop                = "stop"
	typeResetContext        = "reset-context"
	typeSetWeightedPrompts  = "set-weighted-prompts"
	typeSetGenerationConfig = "set-generation-config"
)

// Kind discriminates inbound events delivered on the session channel.
type Kind int

const (
	KindSetupComplete Kind = iota
	KindFilteredPrompt
	KindAudioChunk
	KindError
	KindClosed
)

// Inbound is one event from the service, delivered in strict arrival
// order on a single channel so dispatch ordering stays auditable.
type Inbound struct {
	Kind Kind

	// KindAudioChunk
	MimeType string
	Data     []byte

	// KindFilteredPrompt
	Text   string
	Reason string

	// KindError
	Err error
}

// setupPayload opens a streaming session.
type setupPayload struct {
	Model      string `json:"model"`
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
}

// audioChunkPayload carries one wire-encoded segment. The declared mime
// rate is informational; decoding uses the session's negotiated output
// format instead.
type audioChunkPayload struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// filteredPromptPayload reports a prompt rejected by the content filter.
type filteredPromptPayload struct {
	Text   string `json:"text"`
	Reason string `json:"filteredReason"`
}

// WeightedPrompt is one steering prompt with its blend weight.
type WeightedPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// weightedPromptsPayload updates the active prompt blend.
type weightedPromptsPayload struct {
	WeightedPrompts []WeightedPrompt `json:"weightedPrompts"`
}

// GenerationConfig holds the tunable generation parameters.
type GenerationConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopK        int     `json:"topK,omitempty"`
	Guidance    float64 `json:"guidance,omitempty"`
	BPM         int     `json:"bpm,omitempty"`
	Density     float64 `json:"density,omitempty"`
	Brightness  float64 `json:"brightness,omitempty"`
	Seed        int     `json:"seed,omitempty"`
}

// DefaultGenerationConfig returns the service defaults restored by a
// context reset.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature: 1.1,
		TopK:        40,
		Guidance:    4.0,
	}
}
