// Package mqttuser is a worked task.UserType for exercising an MQTT broker:
// a connect-with-retry and publish-and-measure shape built on
// github.com/eclipse/paho.mqtt.golang, reporting outcomes through
// task.Context.
package mqttuser

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"loadgen/internal/task"
)

const (
	maxConnectAttempts = 5
	initialRetryDelay  = 500 * time.Millisecond
)

// Topic is one weighted publish target this user type can hit.
type Topic struct {
	Name    string
	Path    string
	QoS     byte
	Retain  bool
	Weight  uint64
	Payload func(clientID string) []byte
}

// Shared is the broker connection options every user of this type is built
// from. Unlike httpuser's pooled *http.Client, an MQTT client is not safe to
// share across users - each Clone gets its own options value to connect its
// own mqtt.Client from, one client per simulated device.
type Shared struct {
	broker        string
	username      string
	password      string
	connectTimeout time.Duration
	keepAlive      time.Duration
}

func (s Shared) Clone() task.Shared { return s }

// NewShared builds the broker options shared by every user of this type.
func NewShared(broker, username, password string) func() Shared {
	return func() Shared {
		return Shared{
			broker:         broker,
			username:       username,
			password:       password,
			connectTimeout: 15 * time.Second,
			keepAlive:      60 * time.Second,
		}
	}
}

// User is one virtual MQTT client, connecting under its own client ID and
// publishing to the topics configured for its user type.
type User struct {
	shared   Shared
	clientID string
	client   mqtt.Client
}

// New constructs a User with a client ID derived from its harness-assigned
// ID.
func New(c task.Context, shared Shared) *User {
	return &User{shared: shared, clientID: fmt.Sprintf("loadgen-%d", c.ID())}
}

// OnStart connects with an exponential-backoff retry loop, reporting the
// outcome through c.
func (u *User) OnStart(c task.Context) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(u.shared.broker)
	opts.SetClientID(u.clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(u.shared.connectTimeout)
	opts.SetKeepAlive(u.shared.keepAlive)
	if u.shared.username != "" {
		opts.SetUsername(u.shared.username)
	}
	if u.shared.password != "" {
		opts.SetPassword(u.shared.password)
	}

	retryDelay := initialRetryDelay
	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		client := mqtt.NewClient(opts)
		token := client.Connect()
		if token.Wait() && token.Error() != nil {
			lastErr = token.Error()
			if attempt == maxConnectAttempts {
				c.AddError("CONNECT", u.clientID, lastErr)
				return
			}
			jitter := time.Duration(rand.Float64() * float64(retryDelay) * 0.5)
			time.Sleep(retryDelay + jitter)
			retryDelay *= 2
			continue
		}
		u.client = client
		c.AddSuccess("CONNECT", u.clientID, 0)
		return
	}
}

// OnStop disconnects cleanly if a connection was established.
func (u *User) OnStop(c task.Context) {
	if u.client != nil && u.client.IsConnected() {
		u.client.Disconnect(250)
	}
}

// Publish publishes one message to t.Path and reports the outcome through c.
func (u *User) Publish(ctx context.Context, c task.Context, t Topic) {
	if u.client == nil {
		c.AddError(t.Name, t.Path, fmt.Errorf("not connected"))
		return
	}

	payload := t.Payload(u.clientID)
	start := time.Now()
	token := u.client.Publish(t.Path, t.QoS, t.Retain, payload)
	if token.Wait() && token.Error() != nil {
		c.AddError(t.Name, t.Path, token.Error())
		return
	}
	c.AddSuccess(t.Name, t.Path, time.Since(start))
}

// DefaultPayload builds a realistic-random telemetry body for a topic that
// doesn't need a bespoke one.
func DefaultPayload(clientID string) []byte {
	now := time.Now()
	return []byte(fmt.Sprintf(
		`{"clientId":"%s","ts":%d,"value":%.2f}`,
		clientID, now.Unix(), 80.0+rand.Float64()*120,
	))
}

// NewUserType builds a task.UserType that publishes to each topic with
// probability proportional to its weight.
func NewUserType(name string, weight uint64, between task.Between, broker, username, password string, topics []Topic) *task.UserType[User, Shared] {
	tasks := make([]task.Task[User], 0, len(topics))
	for _, t := range topics {
		t := t
		tasks = append(tasks, task.Task[User]{
			Name:   t.Name,
			Weight: t.Weight,
			Body: func(ctx context.Context, u *User, c task.Context) {
				u.Publish(ctx, c, t)
			},
		})
	}

	return &task.UserType[User, Shared]{
		Name:      name,
		Weight:    weight,
		Between:   between,
		Tasks:     tasks,
		New:       New,
		NewShared: NewShared(broker, username, password),
	}
}
