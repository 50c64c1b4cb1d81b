package link

// Device is the radio side of the wireless audio device. Callbacks may run
// on any goroutine.
type Device interface {
	// Connect starts connecting to addr and returns without waiting for the
	// outcome, which is reported through the connection-state callback.
	Connect(addr Address) error
	Disconnect() error
	Connected() bool
	OnConnectionStateChanged(fn func(addr Address, connected bool))
	// StartDiscovery starts an inquiry; each device found is passed to found.
	StartDiscovery(found func(DiscoveredDevice)) error
	StopDiscovery() error
}

// PeerStore persists the address of the last connected peer.
type PeerStore interface {
	SavePeerAddress(addr Address) error
	LoadPeerAddress() (Address, bool, error)
	ForgetPeer() error
}

// Player is notified of link loss and recovery.
type Player interface {
	// Pause halts playback and keeps the resume context.
	Pause() bool
	// Resume continues from the resume context.
	Resume() bool
	// DropResume discards the resume context.
	DropResume()
}
