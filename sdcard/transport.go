package sdcard

// Transport is the byte-serial exchange primitive the protocol engine is
// built on. Board support layers implement it over their SPI controller;
// test harnesses implement it in memory.
//
// Exchange is full-duplex: for each byte clocked out one byte is clocked
// in. Either slice may be nil; a nil tx transmits fill bytes (0xFF) and a
// nil rx discards received bytes. When both are non-nil they must have
// equal length. Exchange blocks until the transfer completes; the
// underlying transport has no completion interrupt, so all protocol
// timeouts above this layer are bounded poll counts, not wall-clock.
//
// Select asserts (true) or releases (false) the card's chip-select line.
// The engine clocks a trailing fill byte after every release so the
// card's output driver lets go of the bus.
type Transport interface {
	Exchange(tx, rx []byte) error
	Select(assert bool)
}
