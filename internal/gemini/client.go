// Package gemini implements the generation service on Google's Gemini API.
// It produces letter replies, chat turns, WOOP reports, and text embeddings.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/fsyrachel/FurtureSelf-V1/internal/config"
)

// ProfileFields is the structured slice of a CurrentProfile that prompts
// consume. Narrative data never travels through here.
type ProfileFields struct {
	DemoData string
	ValsData string
	BFIData  string
}

// LetterContext carries everything a persona needs to reply to the letter.
type LetterContext struct {
	ProfileName        string
	ProfileDescription string
	Profile            ProfileFields
	LetterContent      string
}

// ChatContext carries one assembled chat turn: persona, profile, retrieved
// memory block, formatted history window, and the new user message.
type ChatContext struct {
	ProfileName        string
	ProfileDescription string
	Profile            ProfileFields
	MemoryBlock        string
	HistoryBlock       string
	UserText           string
}

// ReportContext carries the inputs for the WOOP insight report.
type ReportContext struct {
	Profile        ProfileFields
	LetterContent  string
	ChatTranscript string
}

// WOOP is the four-field insight record (wish, outcome, obstacle, plan).
type WOOP struct {
	Wish     string `json:"wish"`
	Outcome  string `json:"outcome"`
	Obstacle string `json:"obstacle"`
	Plan     string `json:"plan"`
}

// Client defines the generation operations used throughout the application.
// Workers and the chat guard depend on this interface, never on the SDK.
type Client interface {
	GenerateLetterReply(ctx context.Context, lc LetterContext) (string, error)
	GenerateChatReply(ctx context.Context, cc ChatContext) (string, error)
	GenerateReport(ctx context.Context, rc ReportContext) (WOOP, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type sdkClient struct {
	genaiClient    *genai.Client
	log            *slog.Logger
	contentConfig  *genai.GenerateContentConfig
	modelName      string
	fastModelName  string
	embeddingModel string
	embeddingDim   int
	maxRetries     int
	retryDelay     time.Duration
}

// NewClient creates a Gemini client from config. Letter replies and reports
// use the standard model; chat turns use the fast model.
//
//nolint:ireturn // Callers depend on the Client interface for test fakes
func NewClient(ctx context.Context, cfg config.GeminiConfig, embeddingDim int, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,

		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully",
		"model", cfg.ModelName, "fast_model", cfg.FastModelName, "embedding_model", cfg.EmbeddingModel)
	return &sdkClient{
		genaiClient:    gi,
		log:            logger,
		contentConfig:  baseCfg,
		modelName:      cfg.ModelName,
		fastModelName:  cfg.FastModelName,
		embeddingModel: cfg.EmbeddingModel,
		embeddingDim:   embeddingDim,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay, "code", apiErr.Code)
				time.Sleep(c.retryDelay)
				continue
			}
			c.log.ErrorContext(ctx, "Gemini API call failed after max retries with APIError", "error", err, "code", apiErr.Code)
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

func systemInstruction(cfg *genai.GenerateContentConfig, text string) *genai.GenerateContentConfig {
	copyCfg := *cfg
	copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	return &copyCfg
}

// GenerateLetterReply produces one persona's reply letter.
func (c *sdkClient) GenerateLetterReply(ctx context.Context, lc LetterContext) (string, error) {
	c.log.DebugContext(ctx, "Generating letter reply", "profile_name", lc.ProfileName)

	instruction := fmt.Sprintf(LetterReplySystemInstruction,
		lc.ProfileName, lc.ProfileDescription,
		lc.Profile.ValsData, lc.Profile.BFIData, lc.Profile.DemoData)

	contents := []*genai.Content{
		genai.NewContentFromText("# Letter from my past self:\n"+lc.LetterContent, genai.RoleUser),
	}

	resp, err := c.generateContentWithRetries(ctx, c.modelName, contents, systemInstruction(c.contentConfig, instruction))
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini letter reply generation failed", "error", err)
		return "", fmt.Errorf("letter reply generation failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp, "letter_reply")
}

// GenerateChatReply produces the persona's answer to one chat turn. Uses the
// fast model since turns are interactive.
func (c *sdkClient) GenerateChatReply(ctx context.Context, cc ChatContext) (string, error) {
	c.log.DebugContext(ctx, "Generating chat reply", "profile_name", cc.ProfileName)

	instruction := fmt.Sprintf(ChatSystemInstruction,
		cc.ProfileName, cc.ProfileDescription,
		cc.Profile.ValsData, cc.Profile.BFIData, cc.Profile.DemoData,
		cc.MemoryBlock, cc.HistoryBlock)

	contents := []*genai.Content{genai.NewContentFromText(cc.UserText, genai.RoleUser)}

	resp, err := c.generateContentWithRetries(ctx, c.fastModelName, contents, systemInstruction(c.contentConfig, instruction))
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini chat reply generation failed", "error", err)
		return "", fmt.Errorf("chat reply generation failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp, "chat_reply")
}

var woopSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"wish":     {Type: genai.TypeString, Description: "The user's core career wish, one sentence."},
		"outcome":  {Type: genai.TypeString, Description: "The concrete positive outcome the user imagines."},
		"obstacle": {Type: genai.TypeString, Description: "The main obstacles or challenges, merged into one string."},
		"plan":     {Type: genai.TypeString, Description: "The actionable next steps, merged into one string."},
	},
	Required: []string{"wish", "outcome", "obstacle", "plan"},
}

// GenerateReport produces the WOOP insight record using JSON schema mode.
func (c *sdkClient) GenerateReport(ctx context.Context, rc ReportContext) (WOOP, error) {
	c.log.DebugContext(ctx, "Generating report using JSON schema mode")

	profileJSON, err := json.Marshal(rc.Profile)
	if err != nil {
		return WOOP{}, fmt.Errorf("failed to marshal profile for report prompt: %w", err)
	}

	instruction := fmt.Sprintf(ReportSystemInstruction,
		string(profileJSON), rc.LetterContent, rc.ChatTranscript)

	contents := []*genai.Content{genai.NewContentFromText(reportUserPrompt, genai.RoleUser)}

	copyCfg := *systemInstruction(c.contentConfig, instruction)
	copyCfg.ResponseMIMEType = "application/json"
	copyCfg.ResponseSchema = woopSchema

	resp, err := c.generateContentWithRetries(ctx, c.modelName, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini report generation API call failed", "error", err)
		return WOOP{}, fmt.Errorf("report generation failed: %w", err)
	}

	jsonText, err := c.extractTextFromResponse(ctx, resp, "report")
	if err != nil {
		return WOOP{}, fmt.Errorf("failed to extract report response: %w", err)
	}

	var woop WOOP
	if err := json.Unmarshal([]byte(jsonText), &woop); err != nil {
		c.log.ErrorContext(ctx, "Failed to parse WOOP JSON from Gemini response", "error", err, "response_text", jsonText)
		return WOOP{}, fmt.Errorf("invalid WOOP JSON received: %w", err)
	}

	return woop, nil
}

// EmbedTexts embeds a batch of texts at the configured dimensionality. The
// result count and every vector's dimension are checked before returning;
// a mismatch would silently corrupt the vector store.
func (c *sdkClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dim := int32(c.embeddingDim)
	resp, err := c.genaiClient.Models.EmbedContent(ctx, c.embeddingModel, contents, &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: &dim,
	})
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini embedding API call failed", "error", err, "text_count", len(texts))
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d embeddings", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Values) != c.embeddingDim {
			return nil, fmt.Errorf("embedding dimension mismatch at index %d: expected %d, got %d", i, c.embeddingDim, len(emb.Values))
		}
		vectors[i] = emb.Values
	}

	return vectors, nil
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse, op string) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "operation", op, "reason", reasonMsg)
		return "", fmt.Errorf("%s blocked by safety filter: %s", op, reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "operation", op, "finish_reason", finishReason)
		return "", fmt.Errorf("%s returned no content, finish reason: %s", op, finishReason)
	}

	text := resp.Text()
	if text == "" {
		c.log.WarnContext(ctx, "Gemini response text is empty", "operation", op)
		return "", fmt.Errorf("%s returned empty text", op)
	}

	return text, nil
}
