// Package channel manages the lifecycle of channels: a configured transport
// together with the workers that forward its traffic to the operator.
package channel

import (
	"bytes"
	"net/url"

	jsoniter "github.com/json-iterator/go"

	"junction/internal/constants"
	"junction/internal/plugin"
	"junction/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Properties struct {
	Type           string                 `json:"type"`
	Label          string                 `json:"label,omitempty"`
	Config         map[string]interface{} `json:"config"`
	MOURL          string                 `json:"mo_url,omitempty"`
	MOURLAuthToken string                 `json:"mo_url_auth_token,omitempty"`
	// MOURLTimeout is in seconds. Zero means the configured default.
	MOURLTimeout    float64                `json:"mo_url_timeout,omitempty"`
	AMQPQueue       string                 `json:"amqp_queue,omitempty"`
	StatusURL       string                 `json:"status_url,omitempty"`
	CharacterLimit  int                    `json:"character_limit,omitempty"`
	RateLimitCount  int                    `json:"rate_limit_count,omitempty"`
	RateLimitWindow int                    `json:"rate_limit_window,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the properties that do not depend on configured types.
func (p Properties) Validate() error {
	if p.MOURL != "" && p.AMQPQueue != "" {
		return errors.ErrAPIUsage.WithMessage("Only one of mo_url or amqp_queue may be specified")
	}
	if p.MOURL != "" {
		if u, err := url.Parse(p.MOURL); err != nil || u.Scheme == "" || u.Host == "" {
			return errors.ErrValidation.WithMessage("mo_url: Not a valid URL.")
		}
	}
	if p.StatusURL != "" {
		if u, err := url.Parse(p.StatusURL); err != nil || u.Scheme == "" || u.Host == "" {
			return errors.ErrValidation.WithMessage("status_url: Not a valid URL.")
		}
	}
	if p.CharacterLimit < 0 || p.RateLimitCount < 0 || p.RateLimitWindow < 0 || p.MOURLTimeout < 0 {
		return errors.ErrValidation.WithMessage("character_limit, rate_limit_count, rate_limit_window and mo_url_timeout must not be negative")
	}
	if (p.RateLimitCount > 0) != (p.RateLimitWindow > 0) {
		return errors.ErrValidation.WithMessage("rate_limit_count and rate_limit_window must be given together")
	}
	return nil
}

type Channel struct {
	ID string `json:"id"`
	Properties
}

// HasForwarding reports whether the channel delivers inbound traffic to the
// operator directly rather than through a router.
func (c *Channel) HasForwarding() bool {
	return c.MOURL != "" || c.AMQPQueue != ""
}

func (c *Channel) Info() plugin.ChannelInfo {
	var props map[string]interface{}
	if raw, err := json.Marshal(c.Properties); err == nil {
		_ = json.Unmarshal(raw, &props)
	}
	return plugin.ChannelInfo{ID: c.ID, Type: c.Type, Properties: props}
}

func (c *Channel) applicationWorkerName() string {
	return c.ID + ":" + constants.ApplicationWorkerSuffix
}

func (c *Channel) statusWorkerName() string {
	return c.ID + ":" + constants.StatusWorkerSuffix
}

func (c *Channel) transportWorkerName() string {
	return c.ID
}

// WorkerNames lists every worker name a started channel registers.
func (c *Channel) WorkerNames() []string {
	return []string{c.applicationWorkerName(), c.statusWorkerName(), c.transportWorkerName()}
}

func (c *Channel) transportConfig() map[string]interface{} {
	cfg := make(map[string]interface{}, len(c.Config)+4)
	for k, v := range c.Config {
		cfg[k] = v
	}
	cfg["transport_name"] = c.ID
	cfg["worker_name"] = c.ID
	if c.RateLimitCount > 0 {
		cfg["rate_limit_count"] = c.RateLimitCount
		cfg["rate_limit_window"] = c.RateLimitWindow
	}
	return cfg
}

func (c *Channel) applicationConfig(metricWindow, defaultTimeout float64) map[string]interface{} {
	timeout := c.MOURLTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return map[string]interface{}{
		"transport_name":            c.ID,
		"mo_message_url":            c.MOURL,
		"mo_message_url_auth_token": c.MOURLAuthToken,
		"mo_message_url_timeout":    timeout,
		"message_queue":             c.AMQPQueue,
		"metric_window":             metricWindow,
	}
}

func (c *Channel) statusConfig(defaultTimeout float64) map[string]interface{} {
	return map[string]interface{}{
		"transport_name": c.ID,
		"status_url":     c.StatusURL,
		"timeout":        defaultTimeout,
	}
}

// change describes which workers an update must restart.
type change struct {
	transport   bool
	application bool
	status      bool
}

func (ch change) any() bool {
	return ch.transport || ch.application || ch.status
}

func diff(old, updated *Channel) change {
	var ch change
	if old.Type != updated.Type || !sameJSON(old.Config, updated.Config) ||
		old.RateLimitCount != updated.RateLimitCount || old.RateLimitWindow != updated.RateLimitWindow {
		return change{transport: true, application: true, status: true}
	}
	if old.MOURL != updated.MOURL || old.MOURLAuthToken != updated.MOURLAuthToken ||
		old.AMQPQueue != updated.AMQPQueue || old.MOURLTimeout != updated.MOURLTimeout {
		ch.application = true
	}
	if old.StatusURL != updated.StatusURL {
		ch.status = true
	}
	return ch
}

func sameJSON(a, b interface{}) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}
