package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"greenly-backend/internal/config"
	"greenly-backend/internal/model"
	"greenly-backend/pkg/logger"
)

const pricingSystemPrompt = `You are a landscaping cost estimator. Given a resource name and description,
respond with a JSON object matching this shape exactly:
{"base_price": number, "additional_costs": [{"name": string, "description": string, "price": number}],
"total_price": number, "currency": "USD", "notes": string, "estimated_timeframe": string}
Respond with JSON only, no prose.`

// AssistantService 封装 OpenAI 调用。未配置 API key 或调用失败时
// 一律走静态兜底方案，接口永远有结果
type AssistantService struct {
	client *openai.Client
	cfg    config.OpenAIConfig
}

func NewAssistantService(cfg config.OpenAIConfig) *AssistantService {
	s := &AssistantService{cfg: cfg}
	if cfg.APIKey != "" {
		s.client = openai.NewClient(cfg.APIKey)
	}
	return s
}

// Configured 是否有可用的模型后端
func (s *AssistantService) Configured() bool {
	return s.client != nil
}

// GeneratePricingSchema 根据资源描述生成定价方案。
// 模型输出解析失败同样兜底，绝不把半截 JSON 返回给调用方
func (s *AssistantService) GeneratePricingSchema(ctx context.Context, resourceName, resourceDescription string) model.PricingSchemaResponse {
	if s.client == nil {
		return model.PricingSchemaResponse{
			Success:       true,
			PricingSchema: fallbackPricingSchema(resourceName),
		}
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf("Resource: %s\nDescription: %s", resourceName, resourceDescription)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: pricingSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		logger.Errorf("Pricing schema generation failed: %v", err)
		return model.PricingSchemaResponse{
			Success:       true,
			PricingSchema: fallbackPricingSchema(resourceName),
		}
	}

	if len(resp.Choices) == 0 {
		return model.PricingSchemaResponse{
			Success:       true,
			PricingSchema: fallbackPricingSchema(resourceName),
		}
	}

	schema, err := parsePricingSchema(resp.Choices[0].Message.Content)
	if err != nil {
		logger.Warnf("Pricing schema parse failed, using fallback: %v", err)
		schema = fallbackPricingSchema(resourceName)
	}

	return model.PricingSchemaResponse{
		Success:       true,
		PricingSchema: schema,
	}
}

// parsePricingSchema 剥掉模型偶尔带上的代码围栏再解析
func parsePricingSchema(raw string) (model.PricingSchema, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var schema model.PricingSchema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return model.PricingSchema{}, fmt.Errorf("unmarshal pricing schema: %w", err)
	}
	if schema.Currency == "" {
		schema.Currency = "USD"
	}
	return schema, nil
}

// fallbackPricingSchema 模型不可用时的静态方案
func fallbackPricingSchema(resourceName string) model.PricingSchema {
	base := decimal.NewFromInt(500)
	costs := []model.AdditionalCost{
		{Name: "Site preparation", Description: "Clearing and grading the area", Price: decimal.NewFromInt(150)},
		{Name: "Materials delivery", Description: "Transport of plants and materials", Price: decimal.NewFromInt(75)},
		{Name: "Maintenance plan", Description: "First three months of upkeep", Price: decimal.NewFromInt(120)},
	}

	total := base
	for _, c := range costs {
		total = total.Add(c.Price)
	}

	notes := "Estimate based on typical projects"
	if resourceName != "" {
		notes = fmt.Sprintf("Estimate for %s based on typical projects", resourceName)
	}

	return model.PricingSchema{
		BasePrice:          base,
		AdditionalCosts:    costs,
		TotalPrice:         total,
		Currency:           "USD",
		Notes:              notes,
		EstimatedTimeframe: "2-4 weeks",
	}
}
