package domain

// Principal is the signed-in account as reported by the identity provider.
// RawRole is passed through untouched; capability is derived from it on every check.
type Principal struct {
	ID          string `json:"id"`
	RawRole     string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}
