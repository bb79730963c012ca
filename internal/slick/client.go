package slick

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const apiPrefix = "api"

// ErrNotFound is returned by the Find methods when the server has no
// matching resource. Callers typically create one in response.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the Slick server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slick: status code %d: %s", e.StatusCode, e.Detail)
}

// Client talks to one Slick server.
type Client struct {
	baseURL *url.URL
	client  *http.Client
}

// NewClient validates serverURL and returns a Client. The url must carry a
// scheme and host and no path, e.g. `http://slick.example.com:8080`.
func NewClient(serverURL string) (*Client, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("please define the slick url with a scheme and without path, e.g. `http://some-url.com`")
	}

	return &Client{
		baseURL: parsedURL,
		client:  &http.Client{},
	}, nil
}

// Version asks the server who it is. Used to validate the connection before
// any results are filed.
func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var info VersionInfo
	err := c.get(ctx, []string{"version"}, nil, &info)
	return info, err
}

// FindProjectByName returns the project, or ErrNotFound.
func (c *Client) FindProjectByName(ctx context.Context, name string) (Project, error) {
	var project Project
	err := c.get(ctx, []string{"projects", "byname", name}, nil, &project)
	return project, err
}

func (c *Client) CreateRelease(ctx context.Context, projectID string, release Release) (Release, error) {
	var created Release
	err := c.post(ctx, []string{"projects", projectID, "releases"}, release, &created)
	return created, err
}

func (c *Client) CreateBuild(ctx context.Context, projectID, releaseID string, build Build) (Build, error) {
	var created Build
	err := c.post(ctx, []string{"projects", projectID, "releases", releaseID, "builds"}, build, &created)
	return created, err
}

func (c *Client) CreateComponent(ctx context.Context, projectID string, component Component) (Component, error) {
	var created Component
	err := c.post(ctx, []string{"projects", projectID, "components"}, component, &created)
	return created, err
}

// FindTestplan looks a testplan up by project and name, returning
// ErrNotFound when the server knows none.
func (c *Client) FindTestplan(ctx context.Context, projectID, name string) (Testplan, error) {
	var plans []Testplan
	query := url.Values{"projectid": {projectID}, "name": {name}}
	if err := c.get(ctx, []string{"testplans"}, query, &plans); err != nil {
		return Testplan{}, err
	}
	if len(plans) == 0 {
		return Testplan{}, ErrNotFound
	}
	return plans[0], nil
}

func (c *Client) CreateTestplan(ctx context.Context, plan Testplan) (Testplan, error) {
	var created Testplan
	err := c.post(ctx, []string{"testplans"}, plan, &created)
	return created, err
}

// FindTestcase looks a testcase up by project and name, returning
// ErrNotFound when the server knows none.
func (c *Client) FindTestcase(ctx context.Context, projectID, name string) (Testcase, error) {
	var cases []Testcase
	query := url.Values{"projectid": {projectID}, "name": {name}}
	if err := c.get(ctx, []string{"testcases"}, query, &cases); err != nil {
		return Testcase{}, err
	}
	if len(cases) == 0 {
		return Testcase{}, ErrNotFound
	}
	return cases[0], nil
}

func (c *Client) CreateTestcase(ctx context.Context, testcase Testcase) (Testcase, error) {
	var created Testcase
	err := c.post(ctx, []string{"testcases"}, testcase, &created)
	return created, err
}

func (c *Client) CreateTestrun(ctx context.Context, testrun Testrun) (Testrun, error) {
	var created Testrun
	err := c.post(ctx, []string{"testruns"}, testrun, &created)
	return created, err
}

func (c *Client) UpdateTestrun(ctx context.Context, testrun Testrun) (Testrun, error) {
	var updated Testrun
	err := c.put(ctx, []string{"testruns", testrun.ID}, testrun, &updated)
	return updated, err
}

func (c *Client) CreateResult(ctx context.Context, result Result) (Result, error) {
	var created Result
	err := c.post(ctx, []string{"results"}, result, &created)
	if err == nil {
		slog.DebugContext(ctx, "result filed",
			slog.String("result_id", created.ID),
			slog.String("status", string(created.Status)))
	}
	return created, err
}

func (c *Client) endpoint(parts []string, query url.Values) string {
	u := *c.baseURL
	u.Path = "/" + apiPrefix
	for _, p := range parts {
		u.Path += "/" + p
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, parts []string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(parts, query), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, parts []string, in, out any) error {
	return c.send(ctx, http.MethodPost, parts, in, out)
}

func (c *Client) put(ctx context.Context, parts []string, in, out any) error {
	return c.send(ctx, http.MethodPut, parts, in, out)
}

func (c *Client) send(ctx context.Context, method string, parts []string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(parts, nil), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(resp)}
	}
	if out == nil {
		return nil
	}

	contentType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("failed to parse response content type header: %w", err)
	}
	if contentType != "application/json" {
		return fmt.Errorf("expected `application/json` content type, got: %s", contentType)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding json response failed: %w", err)
	}
	return nil
}

// errorDetail pulls a human readable message from an error response body,
// preferring a json `detail` field.
func errorDetail(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(raw) == 0 {
		return resp.Status
	}
	var problem struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &problem); err == nil && problem.Detail != "" {
		return problem.Detail
	}
	return strings.TrimSpace(string(raw))
}
