// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrNoChoices is returned when the service answers without any choice.
var ErrNoChoices = errors.New("oracle returned no choices")

// ErrMissingAPIKey is returned when no API key could be found.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set and no secret file found")

// ChatClient sends one system+user exchange to a text-generation backend.
//
// Implementations return an error for every failure; the Gateway converts
// errors into NoAnswer results.
type ChatClient interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	// APIKey authenticates requests. When empty, SecretPath is read.
	APIKey string

	// SecretPath is a file holding the key (container secret mount).
	SecretPath string

	// BaseURL overrides the API endpoint for compatible servers.
	BaseURL string

	// Model is the chat model name, e.g. "gpt-4o".
	Model string

	// Temperature for sampling. Zero is sent explicitly.
	Temperature float32
}

// OpenAIClient implements ChatClient using go-openai.
//
// Thread Safety: Safe for concurrent use.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIClient creates the backend client.
//
// Description:
//
//	Resolves the API key from the config, falling back to the secret file.
//	BaseURL, when set, points the client at an OpenAI-compatible server.
//
// Inputs:
//
//	cfg - Backend configuration.
//
// Outputs:
//
//	*OpenAIClient - The client.
//	error - ErrMissingAPIKey when no key is available.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" && cfg.SecretPath != "" {
		raw, err := os.ReadFile(cfg.SecretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(raw))
			slog.Info("read OpenAI API key from secret file", "path", cfg.SecretPath)
		}
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	slog.Info("initializing oracle client", "model", model, "custom_base", cfg.BaseURL != "")

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

// Model returns the configured model name.
func (o *OpenAIClient) Model() string {
	return o.model
}

// Chat implements ChatClient.
func (o *OpenAIClient) Chat(ctx context.Context, system, user string) (string, error) {
	temperature := o.temperature
	if temperature == 0 {
		// go-openai omits a zero temperature, which the server reads as 1.
		temperature = math.SmallestNonzeroFloat32
	}
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
