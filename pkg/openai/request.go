package openai

import (
	"fmt"
	"strings"

	sdk "github.com/sashabaranov/go-openai"
)

const (
	BlockTypeText     = "text"
	BlockTypeImageURL = "image_url"
)

// DefaultSystemPrompt asks for three short replies in distinct tones.
const DefaultSystemPrompt = "You write short, witty, natural replies to social media posts. " +
	"Return exactly three replies on separate lines: one casual, one professional, " +
	"and one that politely disagrees. Keep each reply under 40 words. " +
	"Do not use emojis, hashtags, numbering, or quotation marks."

// ImageRef is the nested {"url": "..."} form some clients send.
type ImageRef struct {
	URL string `json:"url"`
}

// Block is one piece of post content scraped by the extension.
type Block struct {
	Type     string    `json:"type" validate:"required,oneof=text image_url"`
	Text     string    `json:"text,omitempty"`
	URL      string    `json:"url,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageLink returns the image URL regardless of which shape carried it.
func (b Block) ImageLink() string {
	if b.ImageURL != nil && strings.TrimSpace(b.ImageURL.URL) != "" {
		return strings.TrimSpace(b.ImageURL.URL)
	}
	return strings.TrimSpace(b.URL)
}

// Validate checks the block carries the payload its type requires.
func (b Block) Validate() error {
	switch b.Type {
	case BlockTypeText:
		if strings.TrimSpace(b.Text) == "" {
			return fmt.Errorf("text block requires text")
		}
	case BlockTypeImageURL:
		if b.ImageLink() == "" {
			return fmt.Errorf("image_url block requires url")
		}
	default:
		return fmt.Errorf("unsupported block type %q", b.Type)
	}
	return nil
}

// CompletionRequest is the provider-agnostic input to Complete.
type CompletionRequest struct {
	Blocks []Block
	// SystemPrompt overrides the client default when non-empty.
	SystemPrompt string
	// User is forwarded to the provider for abuse tracking.
	User string
}

func (c *Client) chatRequest(req CompletionRequest) (sdk.ChatCompletionRequest, error) {
	if len(req.Blocks) == 0 {
		return sdk.ChatCompletionRequest{}, fmt.Errorf("at least one block is required")
	}
	parts := make([]sdk.ChatMessagePart, 0, len(req.Blocks))
	for i, b := range req.Blocks {
		if err := b.Validate(); err != nil {
			return sdk.ChatCompletionRequest{}, fmt.Errorf("block %d: %w", i, err)
		}
		if b.Type == BlockTypeText {
			parts = append(parts, sdk.ChatMessagePart{Type: sdk.ChatMessagePartTypeText, Text: b.Text})
			continue
		}
		parts = append(parts, sdk.ChatMessagePart{
			Type:     sdk.ChatMessagePartTypeImageURL,
			ImageURL: &sdk.ChatMessageImageURL{URL: b.ImageLink(), Detail: sdk.ImageURLDetailAuto},
		})
	}

	system := strings.TrimSpace(req.SystemPrompt)
	if system == "" {
		system = c.systemPrompt
	}

	return sdk.ChatCompletionRequest{
		Model: c.model,
		Messages: []sdk.ChatCompletionMessage{
			{Role: sdk.ChatMessageRoleSystem, Content: system},
			{Role: sdk.ChatMessageRoleUser, MultiContent: parts},
		},
		User: req.User,
	}, nil
}
