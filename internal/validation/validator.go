package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/docpulse/runtime-node/internal/errors"
	"github.com/docpulse/runtime-node/internal/model"
)

const (
	// MaxScopeLength is the maximum allowed scope identifier length
	MaxScopeLength = 128

	// MaxKeyLength is the maximum allowed cache key length
	MaxKeyLength = 512

	// MaxTTL caps per-entry expiry so a typo'd duration cannot pin an
	// entry effectively forever
	MaxTTL = 30 * 24 * time.Hour
)

// ValidateScope validates a scope identifier (project or collection
// namespace). Scopes partition the cache and trail state, so a
// malformed scope would silently create an unreachable partition.
func ValidateScope(scope string) error {
	if scope == "" {
		return errors.InvalidScope(scope, "scope cannot be empty")
	}
	if len(scope) > MaxScopeLength {
		return errors.InvalidScope(scope, fmt.Sprintf("scope exceeds maximum length of %d", MaxScopeLength))
	}
	if strings.ContainsRune(scope, ':') {
		return errors.InvalidScope(scope, "scope cannot contain ':'")
	}
	if err := checkPrintable(scope); err != nil {
		return errors.InvalidScope(scope, err.Error())
	}
	return nil
}

// ValidateKey validates a cache key
func ValidateKey(key string) error {
	if key == "" {
		return errors.InvalidKey(key, "key cannot be empty")
	}
	if len(key) > MaxKeyLength {
		return errors.InvalidKey(key, fmt.Sprintf("key exceeds maximum length of %d", MaxKeyLength))
	}
	if err := checkPrintable(key); err != nil {
		return errors.InvalidKey(key, err.Error())
	}
	return nil
}

// ValidateTTL validates a per-entry TTL override. Zero is allowed and
// means "use the configured default".
func ValidateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return errors.InvalidTTL(ttl.String(), "ttl cannot be negative")
	}
	if ttl > MaxTTL {
		return errors.InvalidTTL(ttl.String(), fmt.Sprintf("ttl exceeds maximum of %s", MaxTTL))
	}
	return nil
}

// ValidatePattern validates an access pattern before it is recorded
func ValidatePattern(p model.Pattern) error {
	switch p.Kind {
	case model.OperationQuery, model.OperationInsert, model.OperationUpdate, model.OperationDelete:
	default:
		return errors.InvalidArgument(fmt.Sprintf("unknown operation kind %q", p.Kind), nil)
	}
	if p.Collection == "" {
		return errors.InvalidArgument("pattern collection cannot be empty", nil)
	}
	if err := checkPrintable(p.Collection); err != nil {
		return errors.InvalidArgument("pattern collection "+err.Error(), nil)
	}
	return nil
}

func checkPrintable(s string) error {
	if strings.ContainsRune(s, '\x00') {
		return fmt.Errorf("cannot contain null bytes")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("cannot contain control characters")
		}
	}
	return nil
}
