// Package core contains the canonical messenger domain contracts: inbound
// events, outbound requests, queue bindings, the error taxonomy and the
// immutable runtime configuration. Transport, queue and storage adapters
// depend on this package; core must not depend on them.
package core
