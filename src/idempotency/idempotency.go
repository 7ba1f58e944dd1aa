/*
Package idempotency remembers the last thing each user posted, so a double
click or a browser retry does not create the same post twice.
*/
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Namespaces keep different kinds of submissions from colliding. Only
// publishing is guarded; edits never consult a Guard.
type Namespace string

const (
	NamespaceTopic   Namespace = "topic"
	NamespaceComment Namespace = "comment"
)

type Guard interface {
	// CheckAndRecord stores hash as the user's latest submission in the
	// namespace and reports whether it was already the latest one.
	CheckAndRecord(ctx context.Context, userID int, ns Namespace, hash string) (duplicate bool, err error)

	// Forget removes hash if it is still the user's latest submission. Used
	// when the post it guarded never made it into the database.
	Forget(ctx context.Context, userID int, ns Namespace, hash string) error
}

// Hash identifies a submission by where it is going and what it says.
func Hash(containerID int, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(containerID)))
	for _, part := range parts {
		h.Write([]byte{0})
		h.Write([]byte(Normalize(part)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize makes retries from different browsers hash the same.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

func key(userID int, ns Namespace) string {
	return "idem:" + string(ns) + ":" + strconv.Itoa(userID)
}
