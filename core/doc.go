// Package core contains canonical webhook domain contracts, entities, and
// orchestration logic: payload signing, outbound dispatch, and the retry
// passes for deliveries and inbound dead letters. Lower-level adapters must
// depend on this package; core must not depend on storage or transport
// adapters.
package core
