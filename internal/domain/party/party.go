package party

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Identity is a resolved caller. Either form may be empty when the
// identity provider did not supply it.
type Identity struct {
	ShortID   string `json:"shortId,omitempty"`
	StorageID string `json:"id,omitempty"`
}

// Ref is a stored reference to a party.
type Ref struct {
	ShortID   string `json:"shortId,omitempty"`
	StorageID string `json:"id,omitempty"`
}

// Ref returns the identity as a stored reference.
func (i Identity) Ref() Ref {
	return Ref{ShortID: strings.TrimSpace(i.ShortID), StorageID: CanonicalID(i.StorageID)}
}

// IsZero reports whether the identity carries no identifier at all.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(i.ShortID) == "" && CanonicalID(i.StorageID) == ""
}

// String returns the most readable identifier, used as the audit actor.
func (i Identity) String() string {
	return i.Ref().String()
}

// IsZero reports whether the reference carries no identifier at all.
func (r Ref) IsZero() bool {
	return strings.TrimSpace(r.ShortID) == "" && CanonicalID(r.StorageID) == ""
}

// Canonical returns r with both identifiers normalized.
func (r Ref) Canonical() Ref {
	return Ref{ShortID: strings.TrimSpace(r.ShortID), StorageID: CanonicalID(r.StorageID)}
}

func (r Ref) String() string {
	c := r.Canonical()
	if c.ShortID != "" {
		return c.ShortID
	}
	return c.StorageID
}

// UnmarshalJSON accepts a bare storage identifier ("…") or an object
// ({"id": "…", "shortId": "…"}). The legacy "_id" key is honored when "id"
// is absent.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Ref{StorageID: CanonicalID(s)}
		return nil
	case '{':
		var raw struct {
			ID       string `json:"id"`
			LegacyID string `json:"_id"`
			ShortID  string `json:"shortId"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		id := raw.ID
		if strings.TrimSpace(id) == "" {
			id = raw.LegacyID
		}
		*r = Ref{ShortID: strings.TrimSpace(raw.ShortID), StorageID: CanonicalID(id)}
		return nil
	default:
		return errors.New("party reference must be a string or an object")
	}
}

// CanonicalID normalizes a storage identifier. UUIDs are rendered in their
// lowercase hyphenated form; any other value is only trimmed.
func CanonicalID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

// SameParty decides whether the caller is the party behind stored.
// Short identifiers are compared first when both sides carry one; otherwise
// the canonical storage identifiers must be equal. Missing data never matches.
func SameParty(claimed Identity, stored Ref) bool {
	return sameRef(claimed.Ref(), stored.Canonical())
}

// SameRef applies the SameParty rule to two stored references.
func SameRef(a, b Ref) bool {
	return sameRef(a.Canonical(), b.Canonical())
}

func sameRef(a, b Ref) bool {
	if a.ShortID != "" && b.ShortID != "" && a.ShortID == b.ShortID {
		return true
	}
	if a.StorageID == "" || b.StorageID == "" {
		return false
	}
	return a.StorageID == b.StorageID
}
