// Package kv provides the key-value persistence injected into the queue and
// session bookkeeping: an in-memory store and a BadgerDB store.
package kv
