package health

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"junction/internal/config"
	"junction/internal/constants"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type QueueStatus struct {
	Name     string  `json:"name"`
	Messages int     `json:"messages"`
	Rate     float64 `json:"rate"`
	Stuck    bool    `json:"stuck"`
}

type managementQueue struct {
	Name         string `json:"name"`
	Messages     int    `json:"messages"`
	MessageStats struct {
		AckDetails struct {
			Rate float64 `json:"rate"`
		} `json:"ack_details"`
	} `json:"message_stats"`
}

// QueueChecker reads queue figures from the RabbitMQ management API. A queue
// is stuck when it holds messages but nothing is being acknowledged.
type QueueChecker struct {
	client   *http.Client
	endpoint string
	user     string
	password string
}

func NewQueueChecker(cfg config.AMQPConfig) *QueueChecker {
	return NewQueueCheckerWithClient(cfg, &http.Client{Timeout: constants.HealthCheckTimeout})
}

func NewQueueCheckerWithClient(cfg config.AMQPConfig, client *http.Client) *QueueChecker {
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}
	return &QueueChecker{
		client:   client,
		endpoint: strings.TrimRight(cfg.ManagementURL, "/") + "/api/queues/" + url.PathEscape(vhost),
		user:     cfg.ManagementUser,
		password: cfg.ManagementPassword,
	}
}

func (c *QueueChecker) Name() string {
	return "queues"
}

func (c *QueueChecker) Check(ctx context.Context) error {
	_, err := c.Report(ctx)
	return err
}

func (c *QueueChecker) Report(ctx context.Context) (interface{}, error) {
	queues, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]QueueStatus, 0, len(queues))
	var stuck []string
	for _, q := range queues {
		st := QueueStatus{
			Name:     q.Name,
			Messages: q.Messages,
			Rate:     q.MessageStats.AckDetails.Rate,
		}
		st.Stuck = st.Messages > 0 && st.Rate == 0
		if st.Stuck {
			stuck = append(stuck, q.Name)
		}
		statuses = append(statuses, st)
	}

	if len(stuck) > 0 {
		return statuses, fmt.Errorf("queues stuck: %s", strings.Join(stuck, ", "))
	}
	return statuses, nil
}

func (c *QueueChecker) fetch(ctx context.Context) ([]managementQueue, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("management API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("management API returned status %d", resp.StatusCode)
	}

	var queues []managementQueue
	if err := json.NewDecoder(resp.Body).Decode(&queues); err != nil {
		return nil, fmt.Errorf("failed to decode management API response: %w", err)
	}
	return queues, nil
}
