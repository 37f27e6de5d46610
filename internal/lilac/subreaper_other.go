//go:build !linux

package lilac

// Without subreaper support the process-group kill in the executor is the
// only cleanup; orphans of orphans may escape.
func SetupSubreaper() error { return nil }

func reapDescendants() {}
