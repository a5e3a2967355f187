package devicetier

import "runtime/debug"

// availableMemoryMB makes a best-effort guess at usable RAM in megabytes.
// There is no RAM-probing library anywhere in the reference corpus (the one
// candidate, gosigar, only appears as an indirect libp2p dependency, never
// imported directly for this purpose), so this stays on the standard
// library: it reads the soft memory limit if the host process set one via
// GOMEMLIMIT, and otherwise assumes a generic mid-range machine rather than
// misclassifying everything as Low.
func availableMemoryMB() uint64 {
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
		return uint64(limit) / (1024 * 1024)
	}
	const assumedMB = 4096
	return assumedMB
}
