package backend

import (
	"context"
	"errors"
	"strings"
)

// Credentials supplies an access token at request time. Engines never cache
// or log the value; secure storage stays behind this interface.
type Credentials interface {
	APIKey(ctx context.Context) (string, error)
}

var errNoKey = errors.New("backend: no API key available")

// StaticKey is the simplest Credentials: a fixed token, typically read from
// the environment during startup.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) {
	s := strings.TrimSpace(string(k))
	if s == "" {
		return "", errNoKey
	}
	return s, nil
}
