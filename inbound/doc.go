// Package inbound routes provider-originated webhooks (Stripe, Twilio,
// the voice AI platform) to per-source handlers after signature
// verification, and captures processing failures into the dead-letter
// store for later replay.
package inbound
