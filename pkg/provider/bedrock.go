package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
)

// BedrockProvider implements Provider over the AWS Bedrock Converse API.
type BedrockProvider struct {
	runtime     *bedrockruntime.Client
	modelID     string
	temperature float32
	maxTokens   int32
}

type BedrockConfig struct {
	Region      string
	ModelID     string
	Temperature float32
	MaxTokens   int32
}

func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.ModelID == "" {
		return nil, fmt.Errorf("provider: bedrock model id is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("provider: load aws config: %w", err)
	}

	return &BedrockProvider{
		runtime:     bedrockruntime.NewFromConfig(awsCfg),
		modelID:     cfg.ModelID,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (p *BedrockProvider) Info() Info {
	return Info{Name: NormalizeName("bedrock"), Model: p.modelID}
}

func (p *BedrockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.modelID),
		Messages: []brtypes.Message{
			{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: prompt}},
			},
		},
		InferenceConfig: p.inferenceConfig(),
	}

	output, err := p.runtime.Converse(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if smithyAsAPIError(err, &apiErr) {
			return "", fmt.Errorf("bedrock converse: %s: %w", apiErr.ErrorCode(), err)
		}
		return "", fmt.Errorf("bedrock converse: %w", err)
	}
	return extractBedrockText(output), nil
}

func (p *BedrockProvider) inferenceConfig() *brtypes.InferenceConfiguration {
	cfg := &brtypes.InferenceConfiguration{}
	if p.temperature > 0 {
		cfg.Temperature = aws.Float32(p.temperature)
	}
	if p.maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(p.maxTokens)
	}
	return cfg
}

func extractBedrockText(output *bedrockruntime.ConverseOutput) string {
	msgOutput, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var out string
	for _, block := range msgOutput.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			out += textBlock.Value
		}
	}
	return out
}

// smithyAsAPIError mirrors errors.As for the smithy.APIError interface,
// letting the retry classifier's CategoryFor read the Bedrock-specific error
// code (e.g. ThrottlingException, ModelNotReadyException) out of the cause
// chain.
func smithyAsAPIError(err error, target *smithy.APIError) bool {
	for err != nil {
		if apiErr, ok := err.(smithy.APIError); ok {
			*target = apiErr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
