// Package threadid assigns the permanent, human-readable ids of imported
// threads: "/YYYY/MM/DD/<slug>", with "<n>-" put in front of the slug when
// an earlier thread already took the plain form.
package threadid

import (
	"errors"
	"strconv"

	"github.com/xaenox/cforum-migrate/internal/models"
	"github.com/xaenox/cforum-migrate/internal/slug"
)

// ErrNoMessages is returned for a thread that has nothing to derive an id from.
var ErrNoMessages = errors.New("thread has no messages")

// Prefix returns the date part of a thread id for a message dated in msg's
// own location.
func Prefix(msg *models.Message) string {
	return msg.Date.Format("/2006/01/02/")
}

// Candidate returns the n-th id candidate for the given prefix and slug.
func Candidate(prefix, subj string, n int) string {
	if n == 0 {
		return prefix + subj
	}
	return prefix + strconv.Itoa(n) + "-" + subj
}

// Assign computes a unique id for t from its first message, records it in
// reg and stores it on t.
func Assign(t *models.Thread, reg *Registry) (string, error) {
	first, ok := t.FirstMessage()
	if !ok {
		return "", ErrNoMessages
	}

	prefix := Prefix(first)
	subj := slug.Make(first.Subject)

	id := reg.ClaimFirst(func(n int) string {
		return Candidate(prefix, subj, n)
	})
	t.ID = id
	return id, nil
}
