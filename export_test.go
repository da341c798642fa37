package compute

// resetGlobal clears the process-wide runtime and the backend registry.
func resetGlobal() {
	global.mu.Lock()
	global.cfg, global.rt, global.dev, global.err, global.done = nil, nil, nil, nil, false
	global.mu.Unlock()

	backendsMu.Lock()
	backends = nil
	backendsMu.Unlock()
}
