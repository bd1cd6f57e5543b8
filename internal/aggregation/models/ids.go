package models

import (
	"upagg/pkg/platform/strings"
)

// EntityID is the short issuer code shared by every source table.
// The empty value means absent.
type EntityID string

func ParseEntityID(raw string) EntityID {
	return EntityID(strings.NormalizeCode(raw))
}

func (id EntityID) String() string { return string(id) }

func (id EntityID) IsZero() bool { return id == "" }

// Country is an ISO country code. The empty value means absent and is never
// treated as haven membership.
type Country string

func ParseCountry(raw string) Country {
	return Country(strings.NormalizeCode(raw))
}

func (c Country) String() string { return string(c) }

func (c Country) IsZero() bool { return c == "" }

// Source labels one of the ownership databases.
type Source string

func ParseSource(raw string) Source {
	return Source(strings.NormalizeLabel(raw))
}

func (s Source) String() string { return string(s) }

// NumSources is the number of ownership databases combined per issuer.
const NumSources = 5
