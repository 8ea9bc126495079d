// Package client sends results to a testops collector. A *Client can be used
// as the backend of a reporter.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/raphi011/testops/internal/model"
)

type Run = model.Run
type Result = model.Result

type Client struct {
	http   *http.Client
	host   string
	thread string

	runID string
}

type RequestError struct {
	ResponseCode int
}

func (e RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.ResponseCode)
}

func (e RequestError) Code() int {
	return e.ResponseCode
}

// StartRunRequest is the body of a request that starts a run.
type StartRunRequest struct {
	Thread string `json:"thread"`
}

// New creates a client of the collector at host, thread identifies
// the worker the results originate from.
func New(host string, c *http.Client, thread string) *Client {
	return &Client{http: c, host: host, thread: thread}
}

func (c *Client) Name() string {
	return "collector"
}

// RunID returns the id assigned by the collector, empty before the run started.
func (c *Client) RunID() string {
	return c.runID
}

func (c *Client) StartRun(ctx context.Context) error {
	var run Run

	if err := c.do(ctx, http.MethodPost, c.url("/runs"), StartRunRequest{Thread: c.thread}, &run); err != nil {
		return errors.Wrap(err, "starting run")
	}

	c.runID = run.ID

	return nil
}

func (c *Client) CompleteRun(ctx context.Context) error {
	if c.runID == "" {
		return errors.New("run was not started")
	}

	return errors.Wrap(c.do(ctx, http.MethodPost, c.url("/runs/%s/complete", c.runID), nil, nil), "completing run")
}

func (c *Client) AddResult(ctx context.Context, r Result) error {
	if c.runID == "" {
		return errors.New("run was not started")
	}

	return errors.Wrapf(c.do(ctx, http.MethodPost, c.url("/runs/%s/results", c.runID), r, nil), "adding result %s", r.Signature)
}

func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run

	if err := c.do(ctx, http.MethodGet, c.url("/runs/%s", runID), nil, &run); err != nil {
		return Run{}, err
	}

	return run, nil
}

func (c *Client) GetRuns(ctx context.Context) ([]Run, error) {
	var runs []Run

	if err := c.do(ctx, http.MethodGet, c.url("/runs"), nil, &runs); err != nil {
		return nil, err
	}

	return runs, nil
}

func (c *Client) url(path string, args ...any) string {
	return c.host + fmt.Sprintf(path, args...)
}

func (c *Client) do(ctx context.Context, method, url string, reqBody, resBody any) error {
	var body io.Reader

	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}

	req.Header.Add("Accept", "application/json")
	if reqBody != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return RequestError{res.StatusCode}
	}

	if resBody != nil {
		d := json.NewDecoder(res.Body)

		if err = d.Decode(resBody); err != nil {
			return err
		}
	}

	return nil
}
