// Package session tracks which relay node owns each connected frontend
// session. Entries are Redis hashes that expire unless refreshed by activity,
// so a crashed node's sessions disappear on their own.
package session
