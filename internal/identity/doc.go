// Package identity defines the normalized identifier-exposure event model shared by every
// decoder, the event queue and the registry.
//
// An Event records one sighting of a subscriber or device identifier (IMSI, m-TMSI, 5G-TMSI,
// IMEISV, ...) or of a serving cell, together with the serving-cell and MME context that was
// current when the sighting was decoded.
//
// Values are kept as the raw tokens the dissector produced. Temporary identifiers may be printed
// in decimal or hexadecimal and the radix cannot be recovered from the token alone, so no numeric
// normalization happens here.
//
// Validity predicates:
//   - IsValidIMSI: 14 or 15 decimal digits
//   - IsValidTemporaryID: 0x-prefixed hex, bare hex, or decimal
package identity
