// Package session is the Redis-backed hot path for session lookups.
//
// Each cached entry mirrors one live session row: the rotation markers the
// token verifier compares against, plus a last_online stamp maintained by
// heartbeats. Entries expire on their own; the relational store stays the
// source of truth and the resolver re-populates misses from it.
//
// A deliberately cacheable "known absent" state exists alongside real
// entries: after a lookup against the relational store comes back empty, an
// empty-string marker is stored so repeated probes with a dead or forged
// session id do not keep hitting the database. [Store.Get] surfaces the
// three states (hit, negative hit, miss) separately.
package session
