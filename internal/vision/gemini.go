package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/spoolhub-backend/pkg/config"
	"github.com/angelmondragon/spoolhub-backend/pkg/types"
)

const extractionPrompt = `You are reading a photo of a 3D-printing filament spool or its label.
Return a single JSON object and nothing else, with these optional keys:
brand, material, color, colorHex (e.g. "#FF8800"), diameterMm (number),
weightGrams (integer, net filament weight), spoolWeightGrams (integer, empty spool),
nozzleTempMinC, nozzleTempMaxC, bedTempMinC, bedTempMaxC (integers, Celsius),
price (number), currency (ISO 4217), notes.
Omit any key you cannot read from the image. Do not guess.`

type generateFunc func(ctx context.Context, model string, parts ...genai.Part) (*genai.GenerateContentResponse, error)

// Gemini extracts attributes with a Gemini multimodal model.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	generate    generateFunc
}

// NewGemini opens one client shared across calls.
func NewGemini(ctx context.Context, cfg config.VisionConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	g := &Gemini{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
	g.generate = g.generateContent
	return g, nil
}

func (g *Gemini) generateContent(ctx context.Context, modelName string, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	model := g.client.GenerativeModel(modelName)
	model.SetTemperature(g.temperature)
	model.ResponseMIMEType = "application/json"
	return model.GenerateContent(ctx, parts...)
}

// Extract sends the image and prompt, then parses the JSON answer.
func (g *Gemini) Extract(ctx context.Context, image []byte, mimeType, modelHint string) (types.ExtractedData, error) {
	if len(image) == 0 {
		return types.ExtractedData{}, extractionError("Image is empty", nil)
	}
	modelName := g.model
	if hint := strings.TrimSpace(modelHint); hint != "" {
		modelName = hint
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.generate(ctx, modelName, genai.Blob{MIMEType: mimeType, Data: image}, genai.Text(extractionPrompt))
	if err != nil {
		return types.ExtractedData{}, classify(err)
	}

	text, err := firstText(resp)
	if err != nil {
		return types.ExtractedData{}, err
	}

	data, err := parseAttributes(text)
	if err != nil {
		return types.ExtractedData{}, extractionError("Could not read filament details from the model response", err)
	}
	data.Model = modelName
	return data, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", extractionError("Image was blocked by the vision model", nil)
		}
		return "", extractionError("Vision model returned no answer", nil)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", extractionError("Vision model returned an empty answer", nil)
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", extractionError("Vision model returned an unexpected answer format", nil)
	}
	return b.String(), nil
}

func classify(err error) *ExtractionError {
	if errors.Is(err, context.DeadlineExceeded) {
		return extractionError("Extraction timed out", err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return extractionError("Vision service rejected our credentials", err)
		case 429:
			return extractionError("Vision service rate limit reached, retry later", err)
		}
	}
	return extractionError("Vision service request failed", err)
}
