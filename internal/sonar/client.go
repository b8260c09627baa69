// Package sonar is a small client of the SonarQube web api used to follow an analysis
package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client talks to the sonar web api
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// StatusError is returned for non 2xx replies
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sonar replied with status %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("sonar replied with status %d: %s", e.Code, e.Message)
}

// Temporary reports whether retrying the same request may succeed
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// NewClient creates a client for the server at endpoint, token may be empty for anonymous access
func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) url(path string, query url.Values) string {
	u := c.endpoint + path
	if len(query) != 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Status returns the server status, UP when the server is ready
func (c *Client) Status(ctx context.Context) (SystemStatus, error) {
	var status SystemStatus
	err := c.get(ctx, c.url("/api/system/status", nil), &status)
	return status, err
}

// Task returns the compute engine task with id
func (c *Client) Task(ctx context.Context, id string) (Task, error) {
	var res taskResponse
	if err := c.get(ctx, c.url("/api/ce/task", url.Values{"id": {id}}), &res); err != nil {
		return Task{}, errors.Wrapf(err, "could not get task %s", id)
	}
	return res.Task, nil
}

// ProjectStatus returns the quality gate status of an analysis
func (c *Client) ProjectStatus(ctx context.Context, analysisID string) (ProjectStatus, error) {
	var res projectStatusResponse
	if err := c.get(ctx, c.url("/api/qualitygates/project_status", url.Values{"analysisId": {analysisID}}), &res); err != nil {
		return ProjectStatus{}, errors.Wrapf(err, "could not get quality gate of analysis %s", analysisID)
	}
	return res.ProjectStatus, nil
}

func (c *Client) get(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		// tokens are sent as the basic auth login with an empty password
		req.SetBasicAuth(c.token, "")
	}

	res, err := c.httpClient.Do(req)
	if res != nil {
		defer res.Body.Close()
	}
	if err != nil {
		return err
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return parseError(res)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(err, "couldn't decode sonar response")
	}
	return nil
}

func parseError(res *http.Response) error {
	statusErr := &StatusError{Code: res.StatusCode}

	text, err := io.ReadAll(res.Body)
	if err != nil {
		return statusErr
	}

	var reply ErrorReply
	if err := json.Unmarshal(text, &reply); err != nil || len(reply.Errors) == 0 {
		statusErr.Message = strings.TrimSpace(string(text))
		return statusErr
	}

	msgs := make([]string, 0, len(reply.Errors))
	for _, e := range reply.Errors {
		msgs = append(msgs, e.Msg)
	}
	statusErr.Message = strings.Join(msgs, "; ")
	return statusErr
}
