// Package identity maps loosely-identified people coming in from many
// platforms onto durable entity records. Resolution runs in four ordered
// stages: exact identifier match, fuzzy name match, language-model
// disambiguation, and finally creation of a new entity.
package identity

import (
	"errors"

	"github.com/helmsman-ai/concierge/pkg/common"
)

// ErrNoIdentifiers is returned when a query carries neither a name nor
// an email nor a phone number.
var ErrNoIdentifiers = errors.New("no identifiers provided")

// Query carries the raw identifiers captured from an inbound message.
// All fields except Platform are optional; at least one of Name, Email,
// or Phone must be set.
type Query struct {
	Name               string
	Email              string
	Phone              string
	Platform           string
	PlatformIdentifier string
	Context            string
}

// Resolution is the outcome of resolving a query against the entity
// store. Method records which stage produced the match.
type Resolution struct {
	// MatchFound is false only when a new entity had to be created.
	MatchFound bool
	Entity     common.Entity
	Link       common.IdentityLink
	Confidence float64
	Method     common.MatchMethod
	Reasoning  string
}
