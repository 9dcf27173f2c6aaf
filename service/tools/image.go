package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"eco-agent-backend/dao"
	"eco-agent-backend/model"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
)

const (
	ToolGenerateImage = "generate_image"

	defaultImageSize    = "1024x1024"
	defaultImageQuality = "medium"
)

// ImageClient go-openai 客户端的图片接口
type ImageClient interface {
	CreateImage(ctx context.Context, request goopenai.ImageRequest) (goopenai.ImageResponse, error)
}

type GenerateImageTool struct {
	client ImageClient
	model  string
}

var _ Tool = &GenerateImageTool{}

func NewGenerateImageTool(client ImageClient, model string) *GenerateImageTool {
	return &GenerateImageTool{client: client, model: model}
}

type generateImageArgs struct {
	Prompt  string `json:"prompt" validate:"required,max=4000"`
	Size    string `json:"size" validate:"omitempty,oneof=1024x1024 1536x1024 1024x1536 auto"`
	Quality string `json:"quality" validate:"omitempty,oneof=low medium high auto"`
}

type generateImageResult struct {
	ImageID       string `json:"image_id"`
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

func (t *GenerateImageTool) Name() string {
	return ToolGenerateImage
}

func (t *GenerateImageTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name: ToolGenerateImage,
		Description: "Generate an illustration, e.g. a concept sketch of a planned street or park. " +
			"The image is shown to the user automatically; do not repeat its URL in markdown.",
		Parameters: schema(map[string]any{
			"prompt":  stringProp("Detailed description of the image."),
			"size":    enumProp("Image size.", "1024x1024", "1536x1024", "1024x1536", "auto"),
			"quality": enumProp("Rendering quality.", "low", "medium", "high", "auto"),
		}, "prompt"),
	}
}

func (t *GenerateImageTool) Call(ctx context.Context, env Env, raw json.RawMessage) (any, error) {
	var args generateImageArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Size == "" {
		args.Size = defaultImageSize
	}
	if args.Quality == "" {
		args.Quality = defaultImageQuality
	}

	req := goopenai.ImageRequest{
		Prompt:  args.Prompt,
		Model:   t.model,
		N:       1,
		Size:    args.Size,
		Quality: args.Quality,
	}
	// gpt-image 系列固定返回 base64，不接受 response_format
	if strings.HasPrefix(t.model, "dall-e") {
		req.ResponseFormat = goopenai.CreateImageResponseFormatB64JSON
		req.Quality = ""
	}

	resp, err := t.client.CreateImage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("image provider returned no data")
	}

	userID, anonymousID := artifactOwner(env)
	image := &model.GeneratedImage{
		ID:            uuid.NewString(),
		UserID:        userID,
		AnonymousID:   anonymousID,
		Prompt:        args.Prompt,
		RevisedPrompt: resp.Data[0].RevisedPrompt,
		Model:         t.model,
		Size:          args.Size,
		Quality:       args.Quality,
		MediaType:     "image/png",
		ImageBase64:   resp.Data[0].B64JSON,
	}
	if err := dao.CreateImage(ctx, image); err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}

	return generateImageResult{
		ImageID:       image.ID,
		URL:           "/api/images/" + image.ID,
		RevisedPrompt: image.RevisedPrompt,
	}, nil
}
