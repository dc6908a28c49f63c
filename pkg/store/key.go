package store

import (
	"strings"
)

// Namespaces used by the SDK.
const (
	// NamespaceUploadSession holds upload.Session values.
	NamespaceUploadSession = "upload-session"

	// NamespaceDeltaLink holds delta links reached by page iterators.
	NamespaceDeltaLink = "delta-link"

	// NamespaceThrottle holds throttle.State values per service host.
	NamespaceThrottle = "throttle"
)

// Key identifies a stored value.
type Key struct {
	// Namespace groups values of the same kind (e.g. "upload-session").
	Namespace string

	// ID is the caller-chosen identifier within the namespace.
	ID string
}

// String generates the Redis key.
// Format: graphcore:<namespace>:<id>
//
// Example:
//
//	graphcore:upload-session:drive/items/report.pdf
func (k Key) String() string {
	parts := []string{"graphcore"}

	if ns := strings.Trim(k.Namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}
	if id := strings.Trim(k.ID, "/"); id != "" {
		parts = append(parts, id)
	}

	return strings.Join(parts, ":")
}
