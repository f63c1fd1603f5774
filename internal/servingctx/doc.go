// Package servingctx holds the process-wide serving-cell and MME routing context that decoders
// share.
//
// CellContext is replaced as a whole tuple by the SIB1 decoders. The replacement reports whether
// the tuple changed, so exactly one writer observes each change and emits the CELL event for it.
//
// MMEContext is updated field by field with a sticky policy: empty observations never clear a
// known value.
//
// Field ownership:
//   - Cell.*: SIB1 (4G), SIB1 (5G NSA), SIB1 (5G SA)
//   - MME.Group: NAS-EPS
//   - MME.Code: NAS-EPS, RRC ConnectionRequest (last write wins)
//
// Every decoder reads both contexts through Snapshot when it annotates an event. Reads are not
// transactional with the event that triggered them: an annotation reflects whatever the context
// held at decode time.
//
// Both types are safe for concurrent use (RWMutex).
package servingctx
