package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LeventeLantos/pacedsend/internal/messenger"
)

// Client drives a chat client that lives behind an HTTP gateway.
//
//	POST {base}/check  {"phoneNumber"}            -> 200 {"registered": bool}
//	POST {base}/send   {"phoneNumber","message"}  -> 202 {"message","messageId"}
type Client struct {
	base   string
	client *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

var (
	_ messenger.Collaborator = (*Client)(nil)
	_ messenger.IDSender     = (*Client)(nil)
)

type checkRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type checkResponse struct {
	Registered *bool `json:"registered"`
}

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

func (c *Client) IsRegistered(ctx context.Context, recipient string) (bool, error) {
	status, body, err := c.post(ctx, "/check", checkRequest{PhoneNumber: recipient})
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d body=%q", status, string(body))
	}

	var cr checkResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return false, fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if cr.Registered == nil {
		return false, fmt.Errorf("missing registered in response body=%q", string(body))
	}
	return *cr.Registered, nil
}

func (c *Client) Send(ctx context.Context, recipient, text string) error {
	_, err := c.SendWithID(ctx, recipient, text)
	return err
}

// SendWithID sends text and returns the gateway's message id.
func (c *Client) SendWithID(ctx context.Context, recipient, text string) (string, error) {
	status, body, err := c.post(ctx, "/send", sendRequest{PhoneNumber: recipient, Message: text})
	if err != nil {
		return "", &messenger.SendError{Recipient: recipient, Err: err}
	}

	if status != http.StatusAccepted {
		return "", &messenger.SendError{
			Recipient: recipient,
			Detail:    fmt.Sprintf("unexpected status code: %d body=%q", status, string(body)),
		}
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", &messenger.SendError{
			Recipient: recipient,
			Detail:    fmt.Sprintf("failed to decode json: %v body=%q", err, string(body)),
			Err:       err,
		}
	}
	if sr.MessageID == "" {
		return "", &messenger.SendError{
			Recipient: recipient,
			Detail:    fmt.Sprintf("missing messageId in response body=%q", string(body)),
		}
	}

	return sr.MessageID, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}
