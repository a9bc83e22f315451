// Package orderbook holds the resting limit orders and stop orders of one
// instrument.
//
// Books are single-writer. Clone is a lazy copy-on-write copy, so an
// execution can stage changes on a clone while readers keep using the
// published book. Orders inside a book are never mutated in place: a change
// replaces the order with a copy.
package orderbook
