// Package structured runs forced-tool-call generation chains that
// return one typed value per invocation, with a bounded
// repair-and-retry loop for values that fail validation.
package structured

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// PromptBuilder renders the base prompt for one input.
type PromptBuilder[TInput any] func(ctx context.Context, input TInput) ([]*schema.Message, error)

// Chain binds a chat model to a single output tool whose arguments are
// the typed result.
type Chain[TInput, TOutput any] struct {
	promptBuilder PromptBuilder[TInput]
	chatModel     model.ToolCallingChatModel
	toolInfo      *schema.ToolInfo
}

// NewChain derives the output tool schema from TOutput and returns a
// ready chain.
func NewChain[TInput, TOutput any](
	chatModel model.ToolCallingChatModel,
	promptBuilder PromptBuilder[TInput],
	toolName string,
	toolDesc string,
) (*Chain[TInput, TOutput], error) {
	toolInfo, err := utils.GoStruct2ToolInfo[TOutput](toolName, toolDesc)
	if err != nil {
		return nil, fmt.Errorf("convert tool info: %w", err)
	}
	return &Chain[TInput, TOutput]{
		promptBuilder: promptBuilder,
		chatModel:     chatModel,
		toolInfo:      toolInfo,
	}, nil
}

// Invoke runs one generation call and decodes the forced tool call's
// arguments.
func (c *Chain[TInput, TOutput]) Invoke(ctx context.Context, input TInput) (*TOutput, error) {
	messages, err := c.promptBuilder(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	return c.generate(ctx, messages)
}

// InvokeChecked runs Invoke and validates the result. A validation
// failure feeds the error plus the offending payload back into a
// follow-up call, up to maxAttempts total attempts; exhausting the
// budget surfaces the last validation error.
func (c *Chain[TInput, TOutput]) InvokeChecked(
	ctx context.Context,
	input TInput,
	validate func(*TOutput) error,
	maxAttempts int,
) (*TOutput, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	base, err := c.promptBuilder(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	messages := base
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := c.generate(ctx, messages)
		if err != nil {
			return nil, err
		}
		if validate == nil {
			return out, nil
		}
		vErr := validate(out)
		if vErr == nil {
			return out, nil
		}
		lastErr = vErr

		offending, mErr := sonic.MarshalString(out)
		if mErr != nil {
			offending = fmt.Sprintf("%+v", out)
		}
		messages = append(append([]*schema.Message{}, base...),
			schema.AssistantMessage(offending, nil),
			schema.UserMessage(fmt.Sprintf(
				"The previous result was rejected: %s\nFix the problem and call %s again with a corrected result.",
				vErr.Error(), c.toolInfo.Name)),
		)
	}
	return nil, fmt.Errorf("generation failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Chain[TInput, TOutput]) generate(ctx context.Context, messages []*schema.Message) (*TOutput, error) {
	response, err := c.chatModel.Generate(ctx, messages,
		model.WithTools([]*schema.ToolInfo{c.toolInfo}),
		model.WithToolChoice(schema.ToolChoiceForced, c.toolInfo.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("call model: %w", err)
	}
	if len(response.ToolCalls) == 0 {
		return nil, fmt.Errorf("no tool call in model response: %s", response.Content)
	}
	var result TOutput
	if err := sonic.UnmarshalString(response.ToolCalls[0].Function.Arguments, &result); err != nil {
		return nil, fmt.Errorf("parse tool call arguments: %w", err)
	}
	return &result, nil
}

// ToolInfo exposes the derived output tool schema.
func (c *Chain[TInput, TOutput]) ToolInfo() *schema.ToolInfo {
	return c.toolInfo
}
