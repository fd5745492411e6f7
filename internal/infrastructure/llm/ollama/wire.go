package ollama

import "github.com/kirillkom/comment-labeler/internal/core/domain"

type sampling struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

func samplingFrom(opts domain.SamplingOptions) sampling {
	return sampling{Temperature: opts.Temperature, TopP: opts.TopP}
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Format   string           `json:"format,omitempty"`
	Options  sampling         `json:"options"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Format  string   `json:"format,omitempty"`
	Options sampling `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}
