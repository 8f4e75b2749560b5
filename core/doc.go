// Package core contains the bridge state aggregate, the protocol registry
// guard and the asset ledger bridge operations. Storage, transport and
// command adapters depend on this package; core depends only on codec.
package core
