package broker

import (
	"strings"

	"junction/internal/constants"
	"junction/pkg/errors"
)

var validSuffixes = map[string]bool{
	constants.RoutingInbound:  true,
	constants.RoutingOutbound: true,
	constants.RoutingEvent:    true,
	constants.RoutingStatus:   true,
}

// RoutingKey builds "<name>.<suffix>", rejecting names that would be
// ambiguous or act as topic wildcards.
func RoutingKey(name, suffix string) (string, error) {
	if name == "" {
		return "", errors.ErrRoutingKey.WithMessage("connector name is empty")
	}
	if strings.ContainsAny(name, " \t\r\n*#") {
		return "", errors.ErrRoutingKey.WithMessage("connector name %q contains invalid characters", name)
	}
	if !validSuffixes[suffix] {
		return "", errors.ErrRoutingKey.WithMessage("unknown routing key suffix %q", suffix)
	}
	return name + "." + suffix, nil
}

// SplitRoutingKey is the inverse of RoutingKey.
func SplitRoutingKey(key string) (name, suffix string, err error) {
	i := strings.LastIndex(key, ".")
	if i <= 0 || i == len(key)-1 {
		return "", "", errors.ErrRoutingKey.WithMessage("malformed routing key %q", key)
	}
	name, suffix = key[:i], key[i+1:]
	if _, err := RoutingKey(name, suffix); err != nil {
		return "", "", err
	}
	return name, suffix, nil
}

func suffixOf(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[i+1:]
	}
	return key
}
