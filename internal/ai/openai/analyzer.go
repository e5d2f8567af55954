package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"github.com/songzhibin97/stockflux/internal/ai"
)

const systemPrompt = "You are a professional equity analyst. You combine technical " +
	"indicators, news sentiment and earnings context into a single trade decision. " +
	"Always answer with the requested JSON format and nothing else."

// OpenAIAnalyzer implements the Analyzer interface using OpenAI chat completions
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
}

// NewOpenAIAnalyzer creates a new OpenAI analyzer instance
func NewOpenAIAnalyzer(apiKey string, model string) *OpenAIAnalyzer {
	client := openai.NewClient(apiKey)
	if model == "" {
		model = openai.GPT4
	}
	return &OpenAIAnalyzer{
		client: client,
		model:  model,
	}
}

// Analyze implements the Analyzer interface
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req *ai.AnalysisRequest) (*ai.Signal, error) {
	resp, err := a.createChatCompletion(ctx, BuildPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", req.Symbol, err)
	}

	signal, err := ParseSignal(req.Symbol, resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis for %s: %w", req.Symbol, err)
	}
	return signal, nil
}

func (a *OpenAIAnalyzer) createChatCompletion(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from api")
	}
	return resp.Choices[0].Message.Content, nil
}

// BuildPrompt renders the analysis context into the user prompt. Shared with
// the deepseek analyzer so both providers see identical context.
func BuildPrompt(req *ai.AnalysisRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze %s (%s market) trading at %s.\n\n", req.Symbol, req.Region, req.Price)

	if req.Tech != nil {
		fmt.Fprintf(&b, "Technical indicators:\nSMA20: %s\nSMA50: %s\nRSI14: %.2f\nMACD: %.4f (signal %.4f)\nTrend: %s\n\n",
			req.Tech.SMA20, req.Tech.SMA50, req.Tech.RSI14, req.Tech.MACD, req.Tech.MACDSignal, req.Tech.Trend)
	}

	if len(req.News) > 0 {
		b.WriteString("Recent headlines:\n")
		for i, item := range req.News {
			if i >= 8 {
				break
			}
			fmt.Fprintf(&b, "- %s (%s)\n", item.Title, item.Source)
		}
		b.WriteString("\n")
	}

	if req.Earnings != "" {
		fmt.Fprintf(&b, "Earnings calendar: %s\n\n", req.Earnings)
	}

	b.WriteString(`Decide one of BUY, SELL, PARTIAL_SELL, HOLD.

Output format:
{
    "decision": "BUY|SELL|PARTIAL_SELL|HOLD",
    "confidence": float,
    "reasoning": "short justification",
    "stop_loss": float or null,
    "allocation_pct": float between 0 and 1 or null
}`)

	return b.String()
}

// ParseSignal decodes the model's JSON answer into a Signal.
func ParseSignal(symbol, content string) (*ai.Signal, error) {
	var result struct {
		Decision      string   `json:"decision"`
		Confidence    float64  `json:"confidence"`
		Reasoning     string   `json:"reasoning"`
		StopLoss      *float64 `json:"stop_loss"`
		AllocationPct *float64 `json:"allocation_pct"`
	}

	// 容忍模型偶尔输出的 markdown 代码块
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("invalid signal json: %w", err)
	}

	decision := ai.Decision(strings.ToUpper(strings.TrimSpace(result.Decision)))
	switch decision {
	case ai.DecisionBuy, ai.DecisionSell, ai.DecisionPartialSell, ai.DecisionHold:
	default:
		return nil, fmt.Errorf("unknown decision %q", result.Decision)
	}

	signal := &ai.Signal{
		Symbol:     symbol,
		Decision:   decision,
		Confidence: result.Confidence,
		Reasoning:  result.Reasoning,
	}
	if result.StopLoss != nil && *result.StopLoss > 0 {
		signal.StopLoss = decimal.NewFromFloat(*result.StopLoss)
	}
	if result.AllocationPct != nil && *result.AllocationPct > 0 && *result.AllocationPct <= 1 {
		signal.AllocationPct = *result.AllocationPct
	}
	return signal, nil
}
