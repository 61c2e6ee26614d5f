// Package router fans the traffic of one channel out to a set of
// destinations according to a routing policy, and carries destination
// replies and delivery events back.
package router

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"junction/internal/constants"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Properties struct {
	Type     string                 `json:"type"`
	Label    string                 `json:"label,omitempty"`
	Config   map[string]interface{} `json:"config"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type Router struct {
	ID string `json:"id"`
	Properties
}

// Channel is the id of the channel the router consumes.
func (r *Router) Channel() string {
	id, _ := r.Config["channel"].(string)
	return id
}

func (r *Router) workerName() string {
	return r.ID
}

type DestinationProperties struct {
	Label          string                 `json:"label,omitempty"`
	Config         map[string]interface{} `json:"config"`
	MOURL          string                 `json:"mo_url,omitempty"`
	MOURLAuthToken string                 `json:"mo_url_auth_token,omitempty"`
	// MOURLTimeout is in seconds. Zero means the configured default.
	MOURLTimeout   float64                `json:"mo_url_timeout,omitempty"`
	AMQPQueue      string                 `json:"amqp_queue,omitempty"`
	CharacterLimit int                    `json:"character_limit,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

type Destination struct {
	ID        string    `json:"id"`
	RouterID  string    `json:"router_id"`
	CreatedAt time.Time `json:"created_at"`
	DestinationProperties
}

// IsDefault reports whether the destination receives traffic no other
// destination matched.
func (d *Destination) IsDefault() bool {
	v, _ := d.Config["default"].(bool)
	return v
}

func (d *Destination) HasForwarding() bool {
	return d.MOURL != "" || d.AMQPQueue != ""
}

func (d *Destination) workerName() string {
	return d.ID
}

func (d *Destination) applicationConfig(metricWindow, defaultTimeout float64) map[string]interface{} {
	timeout := d.MOURLTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return map[string]interface{}{
		"transport_name":            d.ID,
		"mo_message_url":            d.MOURL,
		"mo_message_url_auth_token": d.MOURLAuthToken,
		"mo_message_url_timeout":    timeout,
		"message_queue":             d.AMQPQueue,
		"metric_window":             metricWindow,
	}
}

func configKey(id string) string {
	return id + ":" + constants.RouterConfigSuffix
}

func destinationsKey(routerID string) string {
	return routerID + ":" + constants.RouterDestinationsSuffix
}

func destinationKey(routerID, destinationID string) string {
	return destinationsKey(routerID) + ":" + destinationID
}

func forwardingChanged(old, updated *Destination) bool {
	return old.MOURL != updated.MOURL || old.MOURLAuthToken != updated.MOURLAuthToken ||
		old.MOURLTimeout != updated.MOURLTimeout || old.AMQPQueue != updated.AMQPQueue
}
