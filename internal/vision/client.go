package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	detectPrompt = "Определи, какое блюдо на фото. Ответь только названием блюда на русском языке, без описаний и пояснений. Если на фото нет еды, ответь: не еда."

	critiqueSystemPrompt = "Ты — дерзкий диетолог FoodNudes. Тебе называют блюдо, а ты выдаёшь короткую, острую и смешную критику этого блюда на русском языке: калорийность, польза или вред, и едкий совет. Максимум три предложения. Без приветствий."
)

// Client calls the OpenAI chat-completions API for dish detection and
// critique generation.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewClient(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 180 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func imageDataURL(image []byte) string {
	return fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(image))
}

// DetectDish names the dish on the photo, in Russian.
func (c *Client) DetectDish(ctx context.Context, image []byte) (string, error) {
	dataURL := imageDataURL(image)

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: detectPrompt},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				},
			},
		},
		MaxTokens: 20,
	}

	answer, err := c.complete(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Trim(answer, `."«»`)), nil
}

// Critique generates the short spicy verdict for a dish. The photo goes
// along with the label so the verdict reflects the actual plate, not just
// the name.
func (c *Client) Critique(ctx context.Context, dish string, image []byte) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: critiqueSystemPrompt},
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: fmt.Sprintf("Блюдо: %s", dish)},
					{Type: "image_url", ImageURL: &imageURL{URL: imageDataURL(image)}},
				},
			},
		},
		MaxTokens: 300,
	}

	answer, err := c.complete(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

func (c *Client) complete(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty completion")
	}
	return parsed.Choices[0].Message.Content, nil
}
