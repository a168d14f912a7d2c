// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Defaults for the LLM-backed oracle.
const (
	DefaultModel       = "gpt-4o"
	DefaultTemperature = 0.2
	DefaultTimeout     = 120 * time.Second

	// DefaultRequestsPerMinute bounds the call rate against provider limits.
	DefaultRequestsPerMinute = 30
)

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("oracle returned empty response")

// LLMOption configures an LLMOracle.
type LLMOption func(*LLMOracle)

// WithModel overrides the chat model.
func WithModel(model string) LLMOption {
	return func(o *LLMOracle) {
		if model != "" {
			o.model = model
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) LLMOption {
	return func(o *LLMOracle) { o.baseURL = url }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(temp float32) LLMOption {
	return func(o *LLMOracle) { o.temperature = temp }
}

// WithTimeout bounds each grouping request.
func WithTimeout(d time.Duration) LLMOption {
	return func(o *LLMOracle) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRequestsPerMinute adjusts the client-side rate limit.
func WithRequestsPerMinute(rpm int) LLMOption {
	return func(o *LLMOracle) {
		if rpm > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
		}
	}
}

// LLMOracle asks an OpenAI-compatible chat model to group components.
//
// Safe for concurrent use; the rate limiter serializes bursts across
// goroutines.
type LLMOracle struct {
	client      *openai.Client
	model       string
	baseURL     string
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
}

// NewLLMOracle creates an oracle backed by an OpenAI-compatible API.
func NewLLMOracle(apiKey string, opts ...LLMOption) *LLMOracle {
	o := &LLMOracle{
		model:       DefaultModel,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
		limiter:     rate.NewLimiter(rate.Limit(float64(DefaultRequestsPerMinute)/60.0), 1),
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	o.client = openai.NewClientWithConfig(cfg)
	return o
}

// GroupComponents sends the prompt and parses the grouped response.
//
// The call waits for the rate limiter, is bounded by the configured timeout,
// and returns transport and parse failures alike as plain errors for the
// caller's retry loop.
func (o *LLMOracle) GroupComponents(ctx context.Context, prompt string) (Grouping, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	ctx, span := startGroupSpan(ctx, o.model, len(prompt))
	defer span.End()

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		recordGroupMetrics(ctx, o.model, time.Since(start), false)
		return nil, fmt.Errorf("oracle chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		recordGroupMetrics(ctx, o.model, time.Since(start), false)
		return nil, ErrEmptyResponse
	}

	grouping, err := ParseGrouping(resp.Choices[0].Message.Content)
	if err != nil {
		recordGroupMetrics(ctx, o.model, time.Since(start), false)
		return nil, err
	}

	recordGroupMetrics(ctx, o.model, time.Since(start), true)
	setGroupSpanResult(span, len(grouping))
	slog.Debug("oracle proposed grouping",
		slog.String("model", o.model),
		slog.Int("module_count", len(grouping)))
	return grouping, nil
}

// Compile-time interface compliance check.
var _ Oracle = (*LLMOracle)(nil)
