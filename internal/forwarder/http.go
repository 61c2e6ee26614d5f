package forwarder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"

	"junction/internal/constants"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxResponseBody = 64 * 1024

// Response is what came back from an operator endpoint.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r Response) OK() bool {
	return r.StatusCode >= constants.HTTPStatusOKMin && r.StatusCode < constants.HTTPStatusOKMax
}

// Poster issues single-shot JSON POSTs. It never retries.
type Poster struct {
	client *http.Client
}

func NewPoster() *Poster {
	return &Poster{
		client: &http.Client{},
	}
}

// Post sends body as JSON to target. Credentials embedded in target are
// moved to a basic auth header; a non-empty token becomes a bearer token and
// takes precedence over them.
func (p *Poster) Post(ctx context.Context, target string, body interface{}, token string, timeout time.Duration) (Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	u, err := url.Parse(target)
	if err != nil {
		return Response{}, fmt.Errorf("invalid url: %w", err)
	}
	user := u.User
	u.User = nil

	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	switch {
	case token != "":
		req.Header.Set("Authorization", "Bearer "+token)
	case user != nil:
		password, _ := user.Password()
		req.SetBasicAuth(user.Username(), password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("request to %s failed: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{StatusCode: resp.StatusCode}, fmt.Errorf("failed to read response: %w", err)
	}

	return Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
