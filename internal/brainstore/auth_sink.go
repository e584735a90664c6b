package brainstore

// GetAuthBlock returns the system brain's persisted auth state.
func (s *Store) GetAuthBlock() (*AuthBlock, error) {
	b, err := s.loadReadOnly("system", true)
	if err != nil {
		return nil, err
	}
	if b.Auth == nil {
		return &AuthBlock{Keys: map[string]map[string]any{}}, nil
	}
	return b.Auth, nil
}

// SaveAuthBlock persists the auth manager's state back to the system
// brain. Wired as the auth.Persister callback during bootstrap.
func (s *Store) SaveAuthBlock(block *AuthBlock) error {
	_, err := s.withBrain("system", true, func(b *Brain) error {
		b.Auth = block
		return nil
	})
	return err
}

// GetAPIBlock returns the system brain's persisted REST-admission state.
func (s *Store) GetAPIBlock() (*APIBlock, error) {
	b, err := s.loadReadOnly("system", true)
	if err != nil {
		return nil, err
	}
	if b.API == nil {
		return &APIBlock{}, nil
	}
	return b.API, nil
}

// SaveAPIBlock persists REST-admission state.
func (s *Store) SaveAPIBlock(block *APIBlock) error {
	_, err := s.withBrain("system", true, func(b *Brain) error {
		b.API = block
		return nil
	})
	return err
}
