// Package platform talks to the dataset platform's GraphQL API: the thin
// CRUD layer around datasets, organizations and transformation templates.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"adi/internal/errs"
	"adi/internal/logging"
)

// APIError carries the error list of a GraphQL response.
type APIError struct {
	Messages []string
}

func (e *APIError) Error() string {
	return "platform: " + strings.Join(e.Messages, "\n")
}

type Client struct {
	host   string
	apiKey string
	http   *http.Client
}

// New returns a client for host (scheme and authority, no path). A nil hc
// means http.DefaultClient.
func New(host, apiKey string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{host: strings.TrimRight(host, "/"), apiKey: apiKey, http: hc}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Query posts one GraphQL operation and decodes its data into out. The
// document is parsed locally first so malformed queries never leave the
// process.
func (c *Client) Query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := c.operation(query, vars)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/graphql", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// Upload sends an operation with one file following the GraphQL multipart
// request convention: the file binds to variables.file.
func (c *Client) Upload(ctx context.Context, query string, vars map[string]any, filename string, file io.Reader, out any) error {
	withFile := make(map[string]any, len(vars)+1)
	maps.Copy(withFile, vars)
	withFile["file"] = nil
	vars = withFile
	ops, err := c.operation(query, vars)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, part := range []struct{ name, body string }{
		{"operations", string(ops)},
		{"map", `{ "0": ["variables.file"] }`},
	} {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, part.name))
		h.Set("Content-Type", "application/json")
		w, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, part.body); err != nil {
			return err
		}
	}
	fw, err := mw.CreateFormFile("0", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, file); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/graphql", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) operation(query string, vars map[string]any) ([]byte, error) {
	query = strings.TrimSpace(query)
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return nil, errs.Configuration("platform", "invalid GraphQL document: %v", err)
	}
	if len(doc.Operations) != 1 {
		return nil, errs.Configuration("platform", "want exactly one operation, got %d", len(doc.Operations))
	}
	op := doc.Operations[0]
	logging.L().Debug("platform: request", "operation", op.Operation, "name", op.Name)
	if vars == nil {
		vars = map[string]any{}
	}
	return json.Marshal(gqlRequest{Query: query, Variables: vars})
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)
}

func (c *Client) do(req *http.Request, out any) error {
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("platform: read response: %w", err)
	}

	var gr gqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return fmt.Errorf("platform: status %d: cannot parse response %q: %w", resp.StatusCode, truncate(raw, 200), err)
	}
	if len(gr.Errors) > 0 {
		apiErr := &APIError{}
		for _, e := range gr.Errors {
			apiErr.Messages = append(apiErr.Messages, e.Message)
		}
		return apiErr
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return fmt.Errorf("platform: no data in response %q", truncate(raw, 200))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(gr.Data, out)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
