package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// correctionPrompt instructs the model to emit the canonical line as
// JSON and to return the input verbatim when no price is discoverable,
// rather than guess.
const correctionPrompt = `你是一個餐飲點單語音文本校正器，負責把辨識出的中文語句轉成「餐點名稱 + 空格 + 數字金額 + （可選）空格 + 數字份數」的極簡格式。

規則：
1. 將中文數字（例如：一百二、五十、兩百三十、兩、三份、三杯）轉為阿拉伯數字。
2. 將全形數字轉為半形。
3. 移除金額相關的單位或停用字，如：塊、元、塊錢、塊錢喔、dollar、元整 等。
4. 份數為可選；如果有份數，請只保留「純數字」，並捨棄單位（份、杯、碗、個 等）。
5. 只保留一組「餐點文字 + 空格 + 數字金額 + （可選）空格 + 數字份數」，例如：
   - 「牛肉麵 120」
   - 「牛肉麵 120 2」
6. 若無法確定價格或沒有價格，請直接回傳原始文本，不要亂猜金額與份數。

輸出格式：
請只輸出 JSON，結構為：
{ "normalized": "牛肉麵 120" }
或（有份數時）：
{ "normalized": "牛肉麵 120 2" }`

// GeminiCorrector implements Corrector using Google Gemini.
type GeminiCorrector struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiCorrector creates a Gemini-backed corrector.
func NewGeminiCorrector(ctx context.Context, apiKey, modelName string) (*GeminiCorrector, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(correctionPrompt)},
	}
	model.ResponseMIMEType = "application/json"

	return &GeminiCorrector{client: client, model: model}, nil
}

// Correct sends the utterance to Gemini and parses the JSON reply.
func (c *GeminiCorrector) Correct(ctx context.Context, text string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var reply strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			reply.WriteString(string(t))
		}
	}

	return parseCorrectionJSON(reply.String())
}

// Close releases the underlying client.
func (c *GeminiCorrector) Close() error {
	return c.client.Close()
}

// parseCorrectionJSON extracts the normalized line from the model
// reply, tolerating markdown code fences and surrounding prose.
func parseCorrectionJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}

	var payload struct {
		Normalized string `json:"normalized"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return "", fmt.Errorf("unmarshaling correction reply: %w", err)
	}

	normalized := strings.TrimSpace(payload.Normalized)
	if normalized == "" {
		return "", fmt.Errorf("empty normalized field in reply")
	}
	return normalized, nil
}
