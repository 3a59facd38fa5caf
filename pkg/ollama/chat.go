package ollama

import "context"

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message message `json:"message"`
}

// Generate sends prompt as a single user message and returns the reply text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var resp chatResponse
	req := chatRequest{
		Model:    c.opts.ChatModel,
		Messages: []message{{Role: "user", Content: prompt}},
	}
	if err := c.post(ctx, "/api/chat", req, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
