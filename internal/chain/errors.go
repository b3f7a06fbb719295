package chain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the failure taxonomy at the chain-client boundary
type Kind string

const (
	KindConfig  Kind = "config"
	KindRPC     Kind = "rpc"
	KindRevert  Kind = "revert"
	KindDecode  Kind = "decode"
	KindUnknown Kind = "unknown"
)

// Error is a tagged chain error. Every client method returns one, so callers
// can classify without inspecting message text.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chain: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("chain: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Classify returns the error kind. Tagged chain errors carry their kind
// explicitly; anything else falls back to substring heuristics, kept as an
// adapter for untyped transports. Precedence: config > rpc > revert > decode.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var chainErr *Error
	if errors.As(err, &chainErr) {
		return chainErr.Kind
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg,
		"signer", "private key", "no keeper", "not configured", "missing address",
		"invalid address", "chain id mismatch", "network id mismatch"):
		return KindConfig
	case containsAny(msg,
		"connection refused", "connection reset", "timeout", "timed out",
		"deadline exceeded", "no such host", "eof", "websocket", "dial tcp",
		"too many requests", "service unavailable", "rpc"):
		return KindRPC
	case containsAny(msg,
		"revert", "execution reverted", "out of gas", "insufficient funds",
		"insufficient allowance", "insufficient balance", "nonce too low",
		"replacement transaction", "transaction failed", "receipt status"):
		return KindRevert
	case containsAny(msg,
		"abi", "unpack", "unmarshal", "decode", "invalid opcode output",
		"unexpected end of json"):
		return KindDecode
	default:
		return KindUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
