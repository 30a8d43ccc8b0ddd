// Package cardsim provides an in-memory simulated SD card for tests and
// host-side soak runs.
//
// The simulator implements the byte-serial transport consumed by the
// protocol engine and models a card one clocked byte at a time: command
// frame collection, R1/R3/R7 responses, start and error tokens, CRC16
// over data blocks, busy signaling, and the stop-transmission in-flight
// byte. Sector contents live in a sparse in-memory map.
//
// Fault injection knobs cover the failure modes the write path must
// survive: read error tokens, write rejection by CRC or write error,
// and a card that never leaves busy.
package cardsim
