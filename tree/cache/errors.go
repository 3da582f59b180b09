package cache

import (
	"errors"
	"fmt"

	"github.com/paratreet/treecache/tree"
)

// Protocol violations. Each one is fatal for the run.
var (
	ErrDuplicateFetch  = errors.New("duplicate fetch")
	ErrNotPlaceholder  = errors.New("fetch for a node that is not a placeholder")
	ErrUnexpectedReply = errors.New("reply without matching pending fetch")
	ErrMalformedReply  = errors.New("malformed reply")
	ErrBlockedAtReset  = errors.New("blocked context at reset")
	ErrDuplicateWait   = errors.New("context already waiting")
	ErrNotOwner        = errors.New("owner does not hold key")
)

// ProtocolError reports a fatal protocol violation on one PE.
type ProtocolError struct {
	PE     int
	Key    tree.Key
	Kind   error
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("PE %d key %v: %v", e.PE, e.Key, e.Kind)
	}
	return fmt.Sprintf("PE %d key %v: %v: %s", e.PE, e.Key, e.Kind, e.Detail)
}

// Unwrap exposes the sentinel kind to errors.Is.
func (e *ProtocolError) Unwrap() error { return e.Kind }

func protocolErr(pe int, key tree.Key, kind error, format string, args ...any) *ProtocolError {
	return &ProtocolError{PE: pe, Key: key, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
