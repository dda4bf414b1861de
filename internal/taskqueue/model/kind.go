// Package model defines the task data model: the three task kinds, their
// shared lifecycle columns, and the per-kind payload fields described in
// the data model section of the specification.
package model

import (
	"fmt"
	"strings"
)

// Kind selects the payload schema and back-end for a task.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Kinds lists every kind in a stable order, used by fan-out operations
// (summary, list, cleanup) that iterate "every kind".
var Kinds = []Kind{KindImage, KindVideo, KindAudio}

func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindAudio:
		return true
	}
	return false
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaused    Status = "paused"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists every status in a stable order, used by get_summary.
var AllStatuses = []Status{
	StatusPending, StatusPaused, StatusRunning, StatusSuccess, StatusFailed, StatusCancelled,
}

// Ref is a parsed "kind:id" dependency reference.
type Ref struct {
	Kind Kind
	ID   string
}

func (r Ref) String() string { return fmt.Sprintf("%s:%s", r.Kind, r.ID) }

// ParseRef splits a "kind:id" reference. ok is false if the string has no
// ':' separator; it does NOT validate that Kind is a recognized kind —
// callers must check Kind.Valid() themselves, since an unrecognized kind
// is a distinct ("permanently unmet dependency") condition from a
// malformed reference.
func ParseRef(s string) (ref Ref, ok bool) {
	s = strings.TrimSpace(s)
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return Ref{}, false
	}
	return Ref{Kind: Kind(s[:idx]), ID: s[idx+1:]}, true
}

// ParseDependsOn splits a comma-separated depends_on column into refs,
// skipping blank entries. Malformed entries (no ':') are dropped silently,
// matching the reference implementation's tolerant parsing.
func ParseDependsOn(dependsOn string) []Ref {
	if strings.TrimSpace(dependsOn) == "" {
		return nil
	}
	parts := strings.Split(dependsOn, ",")
	refs := make([]Ref, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if ref, ok := ParseRef(p); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}
