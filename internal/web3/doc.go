// Package web3 houses read-only blockchain connectivity utilities. Council
// verdicts are stamped with the chain ID and block height observed at the
// time of consensus, giving each verdict an externally verifiable anchor.
// The package supports multiple configured chains keyed by name.
package web3
