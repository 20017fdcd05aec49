package entity

// Principal is an authenticated API caller resolved from a bearer key.
type Principal struct {
	Key         string
	Username    string
	DisplayName string
	// RateLimit is "N/second|minute|hour|day" or "unlimited"; empty means
	// the global default applies.
	RateLimit string
	// PersonaPromptFile optionally points at a system prompt used for
	// direct synthesis when no tool context is present.
	PersonaPromptFile string
	// Anonymous marks the public_access principal used when no keys are
	// configured.
	Anonymous bool
}
