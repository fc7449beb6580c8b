package session

import (
	"context"
	"fmt"
	"strings"
)

// Storage persists session values across process restarts.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}

// Keys names the two persisted entries of one auth domain.
type Keys struct {
	Token    string
	Identity string
}

var (
	UserKeys  = Keys{Token: "token", Identity: "user"}
	AdminKeys = Keys{Token: "adminToken", Identity: "admin"}
)

func (k Keys) validate() error {
	if strings.TrimSpace(k.Token) == "" || strings.TrimSpace(k.Identity) == "" {
		return fmt.Errorf("session keys must be non-empty")
	}
	if k.Token == k.Identity {
		return fmt.Errorf("session keys must differ (both %q)", k.Token)
	}
	return nil
}

// CheckDisjoint fails when two domains would read or write the same storage key.
func CheckDisjoint(sets ...Keys) error {
	seen := make(map[string]struct{}, len(sets)*2)
	for _, ks := range sets {
		if err := ks.validate(); err != nil {
			return err
		}
		for _, k := range []string{ks.Token, ks.Identity} {
			if _, dup := seen[k]; dup {
				return fmt.Errorf("session key %q shared between auth domains", k)
			}
			seen[k] = struct{}{}
		}
	}
	return nil
}
