// Package party resolves whether two party identifiers denote the same member.
//
// A member can be referenced by a short identifier assigned once at
// registration or by its authoritative storage identifier. Stored references
// may carry either form, so authorization never compares raw values inline:
// it goes through SameParty.
package party
