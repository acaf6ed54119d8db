// Package hash derives stable, non-reversible identifiers from sensitive
// values. Downstream consumers can correlate records by the digest without
// ever seeing the original value.
package hash
