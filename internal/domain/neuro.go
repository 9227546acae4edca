package domain

type MessageRole string

const (
	DefaultNeuroModel string      = "mistralai/mistral-small-24b-instruct"
	RoleSystem        MessageRole = "system"
	RoleUser          MessageRole = "user"
)

type NeuroMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// NeuroRequest: тело запроса chat completions (OpenRouter-совместимое)
type NeuroRequest struct {
	Model     string         `json:"model"`
	Messages  []NeuroMessage `json:"messages"`
	MaxTokens int            `json:"max_tokens,omitempty"`
}

// NeuroResponse соответствует корневому JSON-объекту.
type NeuroResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Choice: один из вариантов ответа (обычно только один, index=0).
type Choice struct {
	Index        int          `json:"index"`
	Message      NeuroMessage `json:"message"`
	FinishReason string       `json:"finish_reason"`
}
