// Package gadgets provides a reactive propagation engine: small
// stateful cells that merge incoming data under lattice rules, emit
// effects describing what happened, and wire into networks whose own
// topology is itself ordinary gadget state.
//
// The core code is in packages 'gadget', 'lattice', 'cells', 'meta',
// and 'fuzzy'.  Network couplings live in 'sio', and some
// command-line tools are in 'cmd'.
package gadgets
