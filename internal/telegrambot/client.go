// Package telegrambot adapts the Telegram Bot API's long-poll wire
// protocol onto the Orchestrator's Command Surface (spec §10). No
// Telegram SDK exists anywhere in the example pack this project is
// grounded on, so this client is hand-built against the plain HTTP/JSON
// getUpdates/sendMessage contract the same way the teacher builds its own
// HTTP clients (net/http + encoding/json, no code generation).
package telegrambot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// Update is the subset of Telegram's Update object this bot understands.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is the subset of Telegram's Message object this bot understands.
type Message struct {
	Text string `json:"text"`
	From struct {
		ID int64 `json:"id"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

type apiClient struct {
	token   string
	http    *http.Client
	baseURL string
}

func newAPIClient(token, socksProxy string) (*apiClient, error) {
	client := &http.Client{Timeout: 60 * time.Second}

	if socksProxy != "" {
		dialer, err := proxy.SOCKS5("tcp", socksProxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("telegrambot: build socks5 dialer: %w", err)
		}
		ctxDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("telegrambot: socks5 dialer does not support contexts")
		}
		client.Transport = &http.Transport{
			DialContext: ctxDialer.DialContext,
		}
	}

	return &apiClient{
		token:   token,
		http:    client,
		baseURL: "https://api.telegram.org/bot" + token,
	}, nil
}

// getUpdates long-polls for new updates starting at offset, waiting up to
// pollTimeout for the server to hold the connection open.
func (c *apiClient) getUpdates(ctx context.Context, offset int64, pollTimeout time.Duration) ([]Update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("timeout", strconv.Itoa(int(pollTimeout.Seconds())))

	reqCtx, cancel := context.WithTimeout(ctx, pollTimeout+10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/getUpdates?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		OK     bool     `json:"ok"`
		Result []Update `json:"result"`
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("telegrambot: decode getUpdates response: %w", err)
	}
	if !out.OK {
		return nil, fmt.Errorf("telegrambot: getUpdates returned ok=false: %s", string(body))
	}
	return out.Result, nil
}

// sendMessage delivers a plain-text message to chatID.
func (c *apiClient) sendMessage(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegrambot: sendMessage status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
