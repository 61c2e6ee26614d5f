package channel

import (
	"context"

	"junction/internal/stores"
	"junction/pkg/models"
)

var rateLabels = []string{
	models.RateInbound,
	models.RateOutbound,
	models.APIEventSubmitted,
	models.APIEventRejected,
	models.APIEventDeliverySucceeded,
	models.APIEventDeliveryFailed,
	models.APIEventDeliveryPending,
}

type StatusSummary struct {
	Status     models.Level             `json:"status"`
	Components map[string]models.Status `json:"components"`
	Rates      map[string]float64       `json:"rates"`
}

type StatusReport struct {
	*Channel
	Running bool          `json:"running"`
	Status  StatusSummary `json:"status"`
}

// Status returns the channel's properties with its aggregate health and the
// message rates over the configured metric window.
func (s *Service) Status(ctx context.Context, id string) (*StatusReport, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	ch, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	components, err := s.statuses.GetStatuses(ctx, id)
	if err != nil {
		return nil, err
	}

	rates := make(map[string]float64, len(rateLabels))
	for _, label := range rateLabels {
		rate, err := s.rates.GetMessagesPerSecond(ctx, id, label, s.metricWindow())
		if err != nil {
			return nil, err
		}
		rates[label] = rate
	}

	return &StatusReport{
		Channel: ch,
		Running: s.IsRunning(id),
		Status: StatusSummary{
			Status:     stores.AggregateLevel(components),
			Components: components,
			Rates:      rates,
		},
	}, nil
}
