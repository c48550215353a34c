package tts

// Request is a single synthesis request.
type Request struct {
	// Text is the exact text to speak. It is sent verbatim, never normalised.
	Text string

	// VoiceID is the backend-specific voice identifier.
	VoiceID string

	// Language is an optional BCP 47 hint (e.g. "fr-FR") for multilingual
	// backends.
	Language string
}

// Voice describes a voice offered by a backend.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Provider identifies which backend this voice belongs to.
	Provider string `json:"provider"`

	// Language is the voice's primary language, if the backend reports one.
	Language string `json:"language,omitempty"`

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string `json:"metadata,omitempty"`
}
