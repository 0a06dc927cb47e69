package tts

// VoiceProfile selects a voice on a TTS provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name,omitempty"`

	// Provider identifies which TTS provider this voice belongs to.
	Provider string `json:"provider,omitempty"`

	// Language is a BCP-47 tag hint, e.g. "en-US". Ignored by providers that
	// detect the language from the text.
	Language string `json:"language,omitempty"`

	// SpeedFactor adjusts speaking rate (0.5 to 2.0, 1.0 = default). Zero means
	// provider default.
	SpeedFactor float64 `json:"speed_factor,omitempty"`

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string `json:"metadata,omitempty"`
}
