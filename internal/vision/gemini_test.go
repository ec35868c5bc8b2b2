package vision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
)

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func newTestGemini(fn generateFunc) *Gemini {
	return &Gemini{model: "gemini-test", generate: fn}
}

func TestGeminiExtractParsesAnswer(t *testing.T) {
	var gotModel string
	var gotParts []genai.Part
	g := newTestGemini(func(_ context.Context, model string, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
		gotModel = model
		gotParts = parts
		return textResponse("```json\n{\"brand\":\"Polymaker\",\"material\":\"petg\",\"diameterMm\":1.75,\"weightGrams\":\"1000\",\"nozzleTempMinC\":250,\"nozzleTempMaxC\":230}\n```"), nil
	})

	data, err := g.Extract(context.Background(), []byte("img"), "image/jpeg", "")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if gotModel != "gemini-test" {
		t.Fatalf("expected configured model, got %q", gotModel)
	}
	blob, ok := gotParts[0].(genai.Blob)
	if !ok || blob.MIMEType != "image/jpeg" || string(blob.Data) != "img" {
		t.Fatalf("expected image blob first, got %#v", gotParts[0])
	}
	if data.Brand != "Polymaker" || data.Material != "PETG" || data.Model != "gemini-test" {
		t.Fatalf("unexpected data %+v", data)
	}
	if data.WeightGrams == nil || *data.WeightGrams != 1000 {
		t.Fatalf("expected string weight parsed, got %v", data.WeightGrams)
	}
	if *data.NozzleTempMinC != 230 || *data.NozzleTempMaxC != 250 {
		t.Fatalf("expected inverted nozzle range swapped, got %d-%d", *data.NozzleTempMinC, *data.NozzleTempMaxC)
	}
}

func TestGeminiExtractUsesModelHint(t *testing.T) {
	var gotModel string
	g := newTestGemini(func(_ context.Context, model string, _ ...genai.Part) (*genai.GenerateContentResponse, error) {
		gotModel = model
		return textResponse(`{"brand":"Sunlu"}`), nil
	})
	data, err := g.Extract(context.Background(), []byte("img"), "image/png", "gemini-pro")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if gotModel != "gemini-pro" || data.Model != "gemini-pro" {
		t.Fatalf("expected hint to select model, got %q / %q", gotModel, data.Model)
	}
}

func TestGeminiExtractFailuresAreExtractionErrors(t *testing.T) {
	cases := map[string]generateFunc{
		"transport": func(context.Context, string, ...genai.Part) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("connection reset")
		},
		"rate limit": func(context.Context, string, ...genai.Part) (*genai.GenerateContentResponse, error) {
			return nil, &googleapi.Error{Code: 429}
		},
		"no candidates": func(context.Context, string, ...genai.Part) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		},
		"malformed json": func(context.Context, string, ...genai.Part) (*genai.GenerateContentResponse, error) {
			return textResponse("the spool is red"), nil
		},
	}
	for name, fn := range cases {
		_, err := newTestGemini(fn).Extract(context.Background(), []byte("img"), "image/jpeg", "")
		var extractionErr *ExtractionError
		if !errors.As(err, &extractionErr) {
			t.Fatalf("%s: expected ExtractionError, got %v", name, err)
		}
		if strings.TrimSpace(UserMessage(err)) == "" {
			t.Fatalf("%s: expected user message", name)
		}
	}
}

func TestGeminiExtractAppliesTimeout(t *testing.T) {
	g := newTestGemini(func(ctx context.Context, _ string, _ ...genai.Part) (*genai.GenerateContentResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	g.timeout = 10 * time.Millisecond

	_, err := g.Extract(context.Background(), []byte("img"), "image/jpeg", "")
	if UserMessage(err) != "Extraction timed out" {
		t.Fatalf("expected timeout message, got %v", err)
	}
}

func TestGeminiExtractRejectsEmptyImage(t *testing.T) {
	g := newTestGemini(func(context.Context, string, ...genai.Part) (*genai.GenerateContentResponse, error) {
		t.Fatal("generate must not be called")
		return nil, nil
	})
	if _, err := g.Extract(context.Background(), nil, "image/jpeg", ""); err == nil {
		t.Fatal("expected empty image to fail")
	}
}

func TestUnconfigured(t *testing.T) {
	_, err := Unconfigured{}.Extract(context.Background(), []byte("x"), "image/jpeg", "")
	if UserMessage(err) != "Vision extraction is not configured" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"Here you go: {\"a\":1}":  `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Fatalf("stripFences(%q) = %q want %q", in, got, want)
		}
	}
}
