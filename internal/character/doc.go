// Package character defines the immutable point-in-time view of a character
// used by every evaluation, the mutation batch shape accepted by the
// authority, and the externally supplied ruleset constants.
package character
