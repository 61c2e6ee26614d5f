// Package worker hosts the named, independently scheduled workers that make
// up a running channel or router.
package worker

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Worker is a long-lived unit started and stopped by the Supervisor.
// Start must return once the worker is accepting traffic; Stop must not
// return until in-flight work has drained.
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Factory builds an unstarted worker from its decoded-later config map.
type Factory func(name string, config map[string]interface{}) (Worker, error)

// DecodeConfig decodes a worker config map into out, accepting durations as
// strings ("5s") or as numbers of seconds.
func DecodeConfig(input map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode worker config: %w", err)
	}
	return nil
}

func secondsToDurationHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}
