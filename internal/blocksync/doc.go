// Package blocksync implements the block-level synchronization protocol:
// per-block signatures (rolling weak checksum plus SHA-256 strong checksum),
// client-side delta computation against a signature, and server-side delta
// application. All functions are pure and safe for concurrent use; the same
// code runs on both ends of the wire so checksums stay bit-exact.
package blocksync
