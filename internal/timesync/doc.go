// Package timesync provides the clock that stamps decoded events and the elapsed-time rule
// used for identifier lifespans.
//
// Decoders read wall-clock time through a Clock so tests can drive time explicitly.
// Lifespans tolerate a clock that moved backwards across midnight by adding one day to a
// negative difference.
package timesync
