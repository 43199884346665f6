package resolve

import (
	"fmt"
	"strings"

	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Reason classifies why a query could not be answered.
type Reason int

const (
	// ExternalModule means resolution crossed into a module that is not in
	// the snapshot.
	ExternalModule Reason = iota
	// OpaqueCall means a call to a function outside the wrapper allow-list
	// was reached.
	OpaqueCall
	// CyclicReference means an alias or re-export cycle, or the hop limit.
	CyclicReference
	// NotFound means no registration matches the query.
	NotFound
	// AmbiguousMatch means several equally ranked registrations match.
	AmbiguousMatch
	// Unbound means an identifier has no declaration in the snapshot, or a
	// module lacks the requested export.
	Unbound
	// Unsupported means the chain reached an expression the resolver does
	// not follow, e.g. a parameter or a conditional.
	Unsupported
	// InvalidInput means the query or snapshot itself is unusable.
	InvalidInput
)

var reasonNames = [...]string{
	ExternalModule:  "ExternalModule",
	OpaqueCall:      "OpaqueCall",
	CyclicReference: "CyclicReference",
	NotFound:        "NotFound",
	AmbiguousMatch:  "AmbiguousMatch",
	Unbound:         "Unbound",
	Unsupported:     "Unsupported",
	InvalidInput:    "InvalidInput",
}

// String returns the reason name.
func (r Reason) String() string {
	if r >= 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// MarshalText encodes the reason by name.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a reason name.
func (r *Reason) UnmarshalText(text []byte) error {
	for i, name := range reasonNames {
		if name == string(text) {
			*r = Reason(i)
			return nil
		}
	}
	return fmt.Errorf("unknown failure reason %q", text)
}

// Failure is the typed outcome of an unanswerable query.
type Failure struct {
	Reason Reason `json:"reason"`
	Detail string `json:"detail"`

	// Chain lists the names visited before the failure, in order.
	Chain []string `json:"chain,omitempty"`

	// Module and Export name the missing dependency for ExternalModule.
	Module string `json:"module,omitempty"`
	Export string `json:"export,omitempty"`

	// Name is the callee text for OpaqueCall and the identifier for Unbound.
	Name string `json:"name,omitempty"`

	// Candidates holds the spans of every match for AmbiguousMatch.
	Candidates []syntax.Span `json:"candidates,omitempty"`

	// At is where resolution stopped.
	At *syntax.Span `json:"at,omitempty"`

	// rest is the number of property accesses still pending.
	rest int
}

// Error implements error.
func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Reason.String())
	if f.Detail != "" {
		b.WriteString(": ")
		b.WriteString(f.Detail)
	}
	if len(f.Chain) > 0 {
		b.WriteString(" (via ")
		b.WriteString(strings.Join(f.Chain, " -> "))
		b.WriteString(")")
	}
	return b.String()
}

// Failf creates a Failure with a formatted detail.
func Failf(reason Reason, format string, args ...any) *Failure {
	return &Failure{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
