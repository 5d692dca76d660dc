package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.twilio.com"

type TwilioClient struct {
	accountSID string
	authToken  string
	baseURL    string
	client     *http.Client
}

func NewTwilioClient(accountSID, authToken string) *TwilioClient {
	return &TwilioClient{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    defaultBaseURL,
		// Hard ceiling only; per-send deadlines come from the caller's
		// context and are normally shorter.
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithBaseURL points the client at a different API host. Used in tests.
func (c *TwilioClient) WithBaseURL(base string) *TwilioClient {
	c.baseURL = strings.TrimSuffix(base, "/")
	return c
}

type sendResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *TwilioClient) Send(ctx context.Context, body, from, to string) (string, error) {
	form := url.Values{
		"Body": {body},
		"From": {from},
		"To":   {to},
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(raw))
	}

	var sr sendResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(raw))
	}
	if sr.SID == "" {
		return "", fmt.Errorf("missing sid in response body=%q", string(raw))
	}

	return sr.SID, nil
}
