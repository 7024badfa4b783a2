package entity

import "time"

// AuditEntry records one status change of a workflow item
type AuditEntry struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     Actor          `json:"actor"`
	Notes     string         `json:"notes,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// History is the append-only audit trail of an item
type History []AuditEntry

// Append returns a new history with entry at the end. The receiver is never modified
// and the result never shares its backing array.
func (h History) Append(entry AuditEntry) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, entry)
}

// Last returns the most recent entry
func (h History) Last() (AuditEntry, bool) {
	if len(h) == 0 {
		return AuditEntry{}, false
	}
	return h[len(h)-1], true
}

func (h History) clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	for i, e := range h {
		e.Extra = CloneMap(e.Extra)
		out[i] = e
	}
	return out
}
