package stores

import (
	"context"
	"fmt"

	"junction/internal/store"
	"junction/pkg/models"
)

// StatusStore keeps the latest status record per component of a channel.
type StatusStore struct {
	store store.Store
}

func NewStatusStore(s store.Store) *StatusStore {
	return &StatusStore{store: s}
}

func (s *StatusStore) StoreStatus(ctx context.Context, channelID string, status models.Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return s.store.HSet(ctx, statusKey(channelID), status.Component, string(data))
}

func (s *StatusStore) GetStatuses(ctx context.Context, channelID string) (map[string]models.Status, error) {
	fields, err := s.store.HGetAll(ctx, statusKey(channelID))
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]models.Status, len(fields))
	for component, raw := range fields {
		var st models.Status
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status for %s: %w", component, err)
		}
		statuses[component] = st
	}
	return statuses, nil
}

// DeleteStatuses drops every component record of the channel.
func (s *StatusStore) DeleteStatuses(ctx context.Context, channelID string) error {
	return s.store.Delete(ctx, statusKey(channelID))
}

// AggregateLevel is the worst stored component level, ok when none exist.
func AggregateLevel(statuses map[string]models.Status) models.Level {
	levels := make([]models.Level, 0, len(statuses))
	for _, st := range statuses {
		levels = append(levels, st.Level)
	}
	return models.WorstLevel(levels...)
}
