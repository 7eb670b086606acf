package checker

// Reconcile builds the state map for a new address list. Entries that
// already exist keep their results untouched, new addresses start idle,
// entries for removed addresses are dropped. Addresses must already be
// normalized; duplicates collapse onto one entry.
func Reconcile(prev map[string]*RelayState, addrs []string) map[string]*RelayState {
	next := make(map[string]*RelayState, len(addrs))
	for _, a := range addrs {
		if a == "" {
			continue
		}
		if st, ok := prev[a]; ok {
			next[a] = st
			continue
		}
		next[a] = &RelayState{URL: a, Status: StatusIdle}
	}
	return next
}
