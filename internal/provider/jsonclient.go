package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// JSONClient performs authenticated JSON requests against a single provider
// API. Failures are reported as UpstreamError.
type JSONClient struct {
	Provider string
	BaseURL  string
	// Header is added to every request, and carries the credentials.
	Header http.Header
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Get requests path with the given query and decodes the response into out.
func (c *JSONClient) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post sends body as JSON and decodes the response into out.
func (c *JSONClient) Post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// GraphQLRequest is the body of a GraphQL call.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GraphQLResponse is the envelope of a GraphQL response.
type GraphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Decode unmarshals the "data" member into out. Errors reported in the
// response fail the call.
func (r GraphQLResponse) Decode(providerName string, out any) error {
	if len(r.Errors) > 0 {
		messages := make([]string, len(r.Errors))
		for i, e := range r.Errors {
			messages[i] = e.Message
		}
		return UpstreamError{
			Provider: providerName,
			Err:      fmt.Errorf("graphql: %s", strings.Join(messages, "; ")),
		}
	}

	if err := json.Unmarshal(r.Data, out); err != nil {
		return UpstreamError{Provider: providerName, Err: fmt.Errorf("malformed graphql data: %w", err)}
	}

	return nil
}

// GraphQL runs query against the endpoint at path and decodes the "data"
// member into out.
func (c *JSONClient) GraphQL(ctx context.Context, path, query string, variables map[string]any, out any) error {
	var resp GraphQLResponse
	if err := c.Post(ctx, path, GraphQLRequest{Query: query, Variables: variables}, &resp); err != nil {
		return err
	}

	return resp.Decode(c.Provider, out)
}

func (c *JSONClient) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := strings.TrimSuffix(c.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", c.Provider, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", c.Provider, err)
	}

	for name, values := range c.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return UpstreamError{Provider: c.Provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*4))
		return UpstreamError{
			Provider:   c.Provider,
			StatusCode: resp.StatusCode,
			Body:       Truncate(strings.TrimSpace(string(data))),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return UpstreamError{
			Provider:   c.Provider,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("malformed response: %w", err),
		}
	}

	return nil
}
