package activity

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies why a unit of work degraded.
type Kind string

const (
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindInvalidAddress      Kind = "InvalidAddress"
	KindSchemaMismatch      Kind = "SchemaMismatch"
	KindAnomalousDelta      Kind = "AnomalousDelta"
)

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrSchemaMismatch      = errors.New("schema mismatch")
	ErrAnomalousDelta      = errors.New("anomalous delta")
)

// Classify maps an error to its Kind. Anything not recognised, including
// timeouts and transport failures, is UpstreamUnavailable.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidAddress):
		return KindInvalidAddress
	case errors.Is(err, ErrSchemaMismatch):
		return KindSchemaMismatch
	case errors.Is(err, ErrAnomalousDelta):
		return KindAnomalousDelta
	default:
		return KindUpstreamUnavailable
	}
}

// Upstream wraps err as ErrUpstreamUnavailable unless it already carries
// a more specific kind.
func Upstream(op string, err error) error {
	if Classify(err) != KindUpstreamUnavailable || errors.Is(err, ErrUpstreamUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: timeout", op, ErrUpstreamUnavailable)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUpstreamUnavailable, err)
}

// Diagnostic records a degraded unit of work so a report reader can tell
// "no activity" apart from "query failed".
type Diagnostic struct {
	Kind     Kind   `json:"kind"`
	Project  string `json:"project,omitempty"`
	Label    string `json:"label,omitempty"`
	Address  string `json:"address,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Detail   string `json:"detail"`
}

func newDiagnostic(err error) Diagnostic {
	return Diagnostic{Kind: Classify(err), Detail: err.Error()}
}

func (d Diagnostic) String() string {
	target := d.Project
	if d.Label != "" {
		target += "/" + d.Label
	}
	if target == "" {
		target = d.Address
	}
	return fmt.Sprintf("%s %s: %s", d.Kind, target, d.Detail)
}
