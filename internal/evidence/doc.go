// Package evidence will hold verifiable proof that an evaluator actually
// accessed the submitted artifact, such as fetch transcripts, content hashes,
// and signed attestations anchored next to the verdict ledger. Today the
// council trusts each backend's self reported analysis; this package marks the
// planned home for closing that gap.
package evidence
