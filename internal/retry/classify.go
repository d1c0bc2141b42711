package retry

import (
	"errors"
	"net"
	"strings"
)

// Kind buckets an API failure for retry eligibility and user messaging.
type Kind int

const (
	// KindFatal is anything we do not recognize as transient. Never retried.
	KindFatal Kind = iota
	// KindAuth covers bad or missing credentials. Never retried.
	KindAuth
	// KindRateLimited covers quota and 429 responses. Retried with a floor delay.
	KindRateLimited
	// KindServer covers 5xx and overload responses. Retried with standard backoff.
	KindServer
	// KindNetwork covers timeouts and broken connections. Retried, and the
	// owner's Reset hook runs first so a stuck client handle can be recreated.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	default:
		return "fatal"
	}
}

// Retryable reports whether an error of this kind is worth another attempt.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindServer || k == KindNetwork
}

// StatusError lets API clients carry an HTTP status through the error chain.
type StatusError interface {
	error
	HTTPStatus() int
}

// Classify maps an error onto the retry taxonomy. Classification is by HTTP
// status when available, otherwise by message pattern, which is the best the
// upstream SDKs give us.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}

	var se StatusError
	if errors.As(err, &se) {
		switch status := se.HTTPStatus(); {
		case status == 429:
			return KindRateLimited
		case status == 401 || status == 403:
			return KindAuth
		case status >= 500:
			return KindServer
		}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "quota", "resource_exhausted", "too many requests"):
		return KindRateLimited
	case containsAny(msg, "401", "403", "api key", "unauthenticated", "permission denied", "unauthorized"):
		return KindAuth
	case containsAny(msg, "500", "502", "503", "504", "internal error", "unavailable", "overloaded", "bad gateway"):
		return KindServer
	case containsAny(msg, "timeout", "timed out", "connection refused", "connection reset", "broken pipe", "no such host", "eof", "network"):
		return KindNetwork
	default:
		return KindFatal
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
