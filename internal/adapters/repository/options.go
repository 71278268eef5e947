package repository

// Option applies a configuration option to the SnapshotStore.
type Option func(*SnapshotStore)

// WithMaxLimit caps the number of entries TopN returns.
func WithMaxLimit(n int) Option {
	return func(s *SnapshotStore) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithAutoRegister lets Publish create unknown boards instead of failing.
func WithAutoRegister() Option {
	return func(s *SnapshotStore) {
		s.autoRegister = true
	}
}
