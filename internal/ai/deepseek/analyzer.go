package deepseek

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/songzhibin97/stockflux/internal/ai"
	openaiAnalyzer "github.com/songzhibin97/stockflux/internal/ai/openai"
	"github.com/songzhibin97/stockflux/internal/utils/request"
)

const (
	defaultAPIEndpoint = "https://api.deepseek.com/v1"
	defaultModel       = "deepseek-chat"
)

const systemPrompt = "You are a professional equity analyst. You combine technical " +
	"indicators, news sentiment and earnings context into a single trade decision. " +
	"Always answer with the requested JSON format and nothing else."

// DeepSeekAnalyzer implements the Analyzer interface using DeepSeek
type DeepSeekAnalyzer struct {
	apiKey   string
	endpoint string
	model    string
	client   *resty.Client
}

// NewDeepSeekAnalyzer creates a new DeepSeek analyzer instance
func NewDeepSeekAnalyzer(apiKey string, model string) *DeepSeekAnalyzer {
	if model == "" {
		model = defaultModel
	}

	return &DeepSeekAnalyzer{
		apiKey:   apiKey,
		endpoint: defaultAPIEndpoint,
		model:    model,
		client:   request.Request,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Analyze implements the Analyzer interface
func (a *DeepSeekAnalyzer) Analyze(ctx context.Context, req *ai.AnalysisRequest) (*ai.Signal, error) {
	resp, err := a.createChatCompletion(ctx, openaiAnalyzer.BuildPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", req.Symbol, err)
	}

	signal, err := openaiAnalyzer.ParseSignal(req.Symbol, resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis for %s: %w", req.Symbol, err)
	}
	return signal, nil
}

// createChatCompletion sends a request to the DeepSeek API
func (a *DeepSeekAnalyzer) createChatCompletion(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", a.apiKey)).
		SetBody(reqBody).
		Post(fmt.Sprintf("%s/chat/completions", a.endpoint))
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("api error: status=%d, body=%s", resp.StatusCode(), resp.String())
	}

	var chatResp chatResponse
	if err := json.Unmarshal(resp.Body(), &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("api error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from api")
	}

	return chatResp.Choices[0].Message.Content, nil
}
