package main

// versionGate decides when the settings resource must be re-fetched, based on
// the NEED_UPDATE counter returned with every values read.
type versionGate struct {
	lastKnown int
}

func newVersionGate() *versionGate {
	return &versionGate{lastKnown: unknownVersion}
}

// observe records a freshly read version and reports whether settings are stale.
// The sentinel never triggers a fetch and never replaces the last known version.
func (g *versionGate) observe(v int) bool {
	if v == unknownVersion {
		return false
	}
	if v == g.lastKnown {
		return false
	}
	g.lastKnown = v
	return true
}

// forget drops the last known version so the next real version triggers a
// settings fetch. Used after a failed settings read and on reload.
func (g *versionGate) forget() {
	g.lastKnown = unknownVersion
}

func (g *versionGate) known() int { return g.lastKnown }
