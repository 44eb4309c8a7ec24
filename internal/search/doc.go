// Package search dispatches product lookups for confirmed entities.
//
// The Dispatcher keeps at most one job current. Every Search bumps a
// generation counter and cancels the previous job's request; outcomes are
// posted back onto the session event loop and reach the listener only when
// their generation is still current. Failed lookups are delivered with an
// error and never retried here.
//
// Lookup backends live alongside the dispatcher: an HTTP product search
// client, a local barcode field resolver, and a Redis-backed caching
// decorator.
package search
