package domain

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SamplingOptions travel with every inference request.
type SamplingOptions struct {
	Temperature float64
	TopP        float64
	FormatJSON  bool
}
