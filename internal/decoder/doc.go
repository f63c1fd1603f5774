// Package decoder turns dissector text lines into identifier events.
//
// One Decoder runs per channel. Each reads its stream line by line, splits the line on the
// channel separator, applies the channel's field rules and puts events on the shared queue.
// Malformed lines are skipped and reported to the Observer; they never stop a decoder.
//
//	line stream ──► Decoder.Run ──► HandleLine ──► channel handler ──► Emitter (queue)
//	                                                    │   ▲
//	                                                    ▼   │
//	                                        CellContext / MMEContext
//
// Context ownership: the SIB1 channels write the cell, NAS-EPS writes the MME group, and
// NAS-EPS and RRC connection requests both write the MME code. Every other channel only
// reads a snapshot when it emits.
package decoder
