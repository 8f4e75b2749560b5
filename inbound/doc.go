// Package inbound is the transport-facing entry point for call messages.
//
// Deliveries that carry a delivery id are claimed before the bridge handles
// them and completed afterwards, so a transport redelivering the same event
// cannot apply it twice. Failed deliveries release their claim for retry.
package inbound
