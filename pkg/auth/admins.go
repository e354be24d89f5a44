package auth

import "strings"

// AdminList is the operator-supplied allow-list that decides admin status.
// It holds a flat set of subjects and emails, loaded once at startup and
// read-only afterwards, so lookups need no locking.
//
// Admin status is decided here and only here: a token claim asserting
// admin rights is ignored, since token issuers (federated providers in
// particular) are not under this system's control.
type AdminList struct {
	entries map[string]struct{}
}

// NewAdminList builds an AdminList from a flat list of subjects and emails.
// Entries are trimmed; empty entries are dropped. A nil or empty list is
// valid and matches nothing.
func NewAdminList(entries []string) *AdminList {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		set[e] = struct{}{}
	}
	return &AdminList{entries: set}
}

// Contains reports whether the subject or the email appears on the list.
// An empty subject or email never matches.
func (l *AdminList) Contains(subject, email string) bool {
	if l == nil {
		return false
	}
	if subject != "" {
		if _, ok := l.entries[subject]; ok {
			return true
		}
	}
	if email != "" {
		if _, ok := l.entries[email]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of entries on the list.
func (l *AdminList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}
