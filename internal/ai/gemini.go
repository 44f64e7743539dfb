package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements LLMProvider using Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider initializes a new Gemini client.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: missing api key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-2.0-flash")
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (p *GeminiProvider) Close() {
	p.client.Close()
}

func (p *GeminiProvider) ParseRideQuery(ctx context.Context, userMessage string, currentContext map[string]string) (*RideQuery, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, fmt.Errorf("gemini: empty message")
	}
	fullPrompt := fmt.Sprintf("%s\n\nUser Message: %s", buildSystemPrompt(currentContext), userMessage)

	resp, err := p.model.GenerateContent(ctx, genai.Text(fullPrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from Gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	return decodeRideQuery(responseText.String())
}

func decodeRideQuery(raw string) (*RideQuery, error) {
	cleanJSON := cleanJSONString(raw)
	var result RideQuery
	if err := json.Unmarshal([]byte(cleanJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, cleanJSON)
	}
	if result.Seats <= 0 {
		result.Seats = 1
	}
	return &result, nil
}

func buildSystemPrompt(ctxMap map[string]string) string {
	currentTime := ctxMap["current_time"]
	region := ctxMap["region"]
	if currentTime == "" {
		currentTime = "UNKNOWN_TIME"
	}
	if region == "" {
		region = "Bangalore, India"
	}

	return fmt.Sprintf(`Role: You help commuters find shared car rides offered by other users in %s.
Context:
- Current System Time: %s

RULES:
1. Extract the pickup place ("source") and the drop place ("destination") as the user wrote them.
   Keep locality names intact (e.g. "Koramangala 5th Block", "Manyata Tech Park").
2. Resolve relative days ("today", "tomorrow", "this Friday") against the Current System Time and
   output "date" as YYYY-MM-DD. Leave "date" null when no day is mentioned.
3. "seats" is the number of people travelling. Default 1.
4. Set "intent" to "search" only when BOTH source and destination are known.
   If either is missing set "intent" to "clarification" and ask for it in "reply".
   Small talk gets "intent": "chat".
5. "reply" is one short, friendly English sentence. No markdown.

Output JSON Schema:
{
  "intent": "search" | "clarification" | "chat",
  "source": "string or null",
  "destination": "string or null",
  "date": "YYYY-MM-DD or null",
  "seats": integer,
  "reply": "string"
}
`, region, currentTime)
}

// cleanJSONString removes markdown code blocks if present (e.g. ```json ... ```)
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
