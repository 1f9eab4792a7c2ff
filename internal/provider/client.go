package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// ollamaClient talks to one Ollama server.
type ollamaClient struct {
	http    *http.Client
	baseURL string
	model   string
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// probe lists installed models. Any 2xx answer counts as available.
func (c ollamaClient) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("probe answered %s", resp.Status)
	}
	return nil
}

func (c ollamaClient) generate(ctx context.Context, prompt string) (string, error) {
	var out ollamaGenerateResponse
	body := ollamaGenerateRequest{Model: c.model, Prompt: prompt, Stream: false}
	if err := postJSON(ctx, c.http, c.baseURL+"/api/generate", body, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// openAIClient calls the chat completions endpoint. The API key travels as an
// oauth2 bearer token on every request.
type openAIClient struct {
	http        *http.Client
	url         string
	model       string
	temperature float64
}

func newOpenAIClient(base *http.Client, url, apiKey, model string, temperature float64) openAIClient {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"})
	return openAIClient{
		http:        oauth2.NewClient(ctx, src),
		url:         url,
		model:       model,
		temperature: temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c openAIClient) chat(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	}
	var out chatResponse
	if err := postJSON(ctx, c.http, c.url, body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("response contained no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// backendError is a non-2xx answer from a completion backend.
type backendError struct {
	Status string
	Detail string
}

func (e *backendError) Error() string {
	if e.Detail == "" {
		return "backend answered " + e.Status
	}
	return fmt.Sprintf("backend answered %s: %s", e.Status, e.Detail)
}

func postJSON(ctx context.Context, client *http.Client, url string, reqBody, out any) error {
	b, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &backendError{Status: resp.Status, Detail: errorDetail(msg)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorDetail pulls the message out of the error bodies Ollama
// ({"error":"..."}) and OpenAI ({"error":{"message":"..."}}) send, falling
// back to the raw text.
func errorDetail(body []byte) string {
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return flat.Error
	}
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	return strings.TrimSpace(string(body))
}
