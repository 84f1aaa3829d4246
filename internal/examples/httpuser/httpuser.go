// Package httpuser is a worked task.UserType for exercising an HTTP target:
// a tuned transport (MaxIdleConnsPerHost, DialContext, keep-alive) and an
// execute-and-measure-latency call shape that reports outcomes through
// task.Context.
package httpuser

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"loadgen/internal/task"
)

// Endpoint is one weighted HTTP call this user type can make.
type Endpoint struct {
	Name   string
	Method string
	Path   string
	Weight uint64
}

// Shared is the single *http.Client every user of this type shares -
// connection pooling only pays off when every user reuses it, and
// *http.Client is already safe for concurrent use, so Clone returns the
// receiver unchanged (the same pattern as task.NoShared, but carrying state).
type Shared struct {
	client  *http.Client
	baseURL string
}

func (s Shared) Clone() task.Shared { return s }

// NewShared builds the transport once per test, tuning
// MaxIdleConnsPerHost/MaxConnsPerHost/DialContext for sustained load.
func NewShared(baseURL string, timeout time.Duration) func() Shared {
	return func() Shared {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			MaxConnsPerHost:     100,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: false},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		}
		return Shared{
			client:  &http.Client{Transport: transport, Timeout: timeout},
			baseURL: baseURL,
		}
	}
}

// User is one virtual user hitting the target over HTTP.
type User struct {
	shared Shared
}

// New constructs a User, mirroring User::new(test_config, context, shared).
func New(c task.Context, shared Shared) *User {
	return &User{shared: shared}
}

// Call executes one endpoint and reports the outcome - a success, failure,
// or error - through c.
func (u *User) Call(ctx context.Context, c task.Context, ep Endpoint) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, ep.Method, u.shared.baseURL+ep.Path, nil)
	if err != nil {
		c.AddError(ep.Method, ep.Name, fmt.Errorf("build request: %w", err))
		return
	}

	resp, err := u.shared.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.AddError(ep.Method, ep.Name, err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		c.AddSuccess(ep.Method, ep.Name, latency)
	} else {
		c.AddFailure(ep.Method, ep.Name)
	}
}

// NewUserType builds a task.UserType that calls each endpoint with
// probability proportional to its weight.
func NewUserType(name string, weight uint64, between task.Between, baseURL string, timeout time.Duration, endpoints []Endpoint) *task.UserType[User, Shared] {
	tasks := make([]task.Task[User], 0, len(endpoints))
	for _, ep := range endpoints {
		ep := ep
		tasks = append(tasks, task.Task[User]{
			Name:   ep.Name,
			Weight: ep.Weight,
			Body: func(ctx context.Context, u *User, c task.Context) {
				u.Call(ctx, c, ep)
			},
		})
	}

	return &task.UserType[User, Shared]{
		Name:      name,
		Weight:    weight,
		Between:   between,
		Tasks:     tasks,
		New:       New,
		NewShared: NewShared(baseURL, timeout),
	}
}
