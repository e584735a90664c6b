package brainstore

// GetPresets returns the system brain's raw preset documents, keyed by
// slug. Values are generic maps; internal/preset (de)serializes them
// through internal/codec to avoid brainstore depending on that package.
func (s *Store) GetPresets() (map[string]map[string]any, error) {
	b, err := s.loadReadOnly("system", true)
	if err != nil {
		return nil, err
	}
	if b.Export == nil {
		return map[string]map[string]any{}, nil
	}
	return b.Export.Presets, nil
}

// SavePresets replaces the system brain's preset registry wholesale.
func (s *Store) SavePresets(presets map[string]map[string]any) error {
	_, err := s.withBrain("system", true, func(b *Brain) error {
		if b.Export == nil {
			b.Export = &ExportBlock{}
		}
		b.Export.Presets = presets
		return nil
	})
	return err
}
