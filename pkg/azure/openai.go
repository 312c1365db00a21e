package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient はAzure OpenAI REST APIへのリクエストを管理します。
type OpenAIClient struct {
	endpoint           string
	apiKey             string
	apiVersion         string
	chatDeploymentName string
	httpClient         *http.Client
}

// NewOpenAIClient は新しいAzure OpenAIクライアントを作成します。
func NewOpenAIClient(endpoint, apiKey, apiVersion, chatDeploymentName string) *OpenAIClient {
	return &OpenAIClient{
		endpoint:           endpoint,
		apiKey:             apiKey,
		apiVersion:         apiVersion,
		chatDeploymentName: chatDeploymentName,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Configured エンドポイントとAPIキーが設定されているか
func (c *OpenAIClient) Configured() bool {
	return c != nil && c.endpoint != "" && c.apiKey != ""
}

// --- データ構造定義 ---

// ChatMessage チャットメッセージ
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest チャット補完リクエスト
type ChatCompletionRequest struct {
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
}

// ChatCompletionResponse チャット補完レスポンス
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ErrorResponse エラーレスポンス
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// --- メソッド定義 ---

// ChatCompletion チャット補完を実行
func (c *OpenAIClient) ChatCompletion(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float32) (*ChatCompletionResponse, error) {
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimSuffix(c.endpoint, "/"), c.chatDeploymentName, c.apiVersion)

	request := ChatCompletionRequest{
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        0.95,
	}

	var response ChatCompletionResponse
	if err := c.doRequest(ctx, url, request, &response); err != nil {
		return nil, fmt.Errorf("Azure OpenAI API 呼び出しに失敗: %w", err)
	}
	return &response, nil
}

// doRequest はHTTPリクエストの実行と基本的なレスポンス処理を行う共通メソッドです。
func (c *OpenAIClient) doRequest(ctx context.Context, url string, requestData interface{}, responseData interface{}) error {
	if c.apiKey == "" {
		return fmt.Errorf("API key が設定されていません")
	}

	requestBody, err := json.Marshal(requestData)
	if err != nil {
		return fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの実行に失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return fmt.Errorf("Azure OpenAI API エラー (status: %d): %s", resp.StatusCode, errorResp.Error.Message)
		}
		return fmt.Errorf("Azure OpenAI API エラー (status: %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, responseData); err != nil {
		return fmt.Errorf("レスポンスのJSON解析に失敗: %w", err)
	}
	return nil
}

// SummarizeForecast 週次予測の要約文を生成
func (c *OpenAIClient) SummarizeForecast(ctx context.Context, forecastFacts string) (string, error) {
	messages := []ChatMessage{
		{
			Role:    "system",
			Content: "You are a restaurant operations analyst. Summarize the weekly sales forecast for a restaurant manager in two or three plain sentences. Mention only facts that are given.",
		},
		{
			Role:    "user",
			Content: forecastFacts,
		},
	}

	response, err := c.ChatCompletion(ctx, messages, 300, 0.4)
	if err != nil {
		return "", err
	}
	if len(response.Choices) > 0 && strings.TrimSpace(response.Choices[0].Message.Content) != "" {
		return strings.TrimSpace(response.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("Azure OpenAI からの応答が空です")
}
