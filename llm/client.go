// Package llm produces AI commentary on portfolios through any
// OpenAI-compatible chat-completions endpoint.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// systemMessage frames the model as a portfolio analyst. Analysis must stay
// grounded in the supplied holdings and trade history.
const systemMessage = "You are a meticulous portfolio analyst for an AI trading platform. Base every statement strictly on the portfolio data provided: holdings, cash balance, trade history and performance metrics. Do not invent news or price targets. Deliver a concise assessment of allocation, concentration risk and recent trading behavior, with concrete observations an investor can act on."

// Client talks to one chat-completions endpoint with one model. A single
// instance is shared across requests; the transport pools connections.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewClient creates a chat-completions client. The HTTP client carries no
// timeout of its own: streamed analyses can run long, so cancellation is the
// request context's job.
func NewClient(endpoint, apiKey, model string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client: &http.Client{
			Transport: transport,
		},
	}
}

// Message is one chat turn. Role is "system", "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type streamChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamCallback receives each content chunk of a streamed completion.
// Returning an error aborts the stream.
type StreamCallback func(chunk string) error

type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int     `json:"index"`
		Message Message `json:"message"`
		Finish  string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ChatCompletion runs one blocking completion and returns the first choice.
func (c *Client) ChatCompletion(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.post(ctx, chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// ChatCompletionStream runs a streamed completion, feeding each content
// delta to the callback as it arrives.
func (c *Client) ChatCompletionStream(ctx context.Context, messages []Message, callback StreamCallback) error {
	resp, err := c.post(ctx, chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   2000,
		Stream:      true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		// "[DONE]" is the server's end-of-stream sentinel.
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			if err := callback(content); err != nil {
				return fmt.Errorf("callback error: %w", err)
			}
		}
		if chunk.Choices[0].FinishReason != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream reading error: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// Analyze runs one blocking analysis of the given prompt under the analyst
// system message.
func (c *Client) Analyze(ctx context.Context, prompt string) (string, error) {
	return c.ChatCompletion(ctx, analysisMessages(prompt))
}

// AnalyzeStream is the streamed variant of Analyze.
func (c *Client) AnalyzeStream(ctx context.Context, prompt string, callback StreamCallback) error {
	return c.ChatCompletionStream(ctx, analysisMessages(prompt), callback)
}

func analysisMessages(prompt string) []Message {
	return []Message{
		{Role: "system", Content: systemMessage},
		{Role: "user", Content: prompt},
	}
}
