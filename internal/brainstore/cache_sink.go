package brainstore

// GetCacheBlock returns the system brain's cache config (active flag,
// default TTL).
func (s *Store) GetCacheBlock() (*CacheBlock, error) {
	b, err := s.loadReadOnly("system", true)
	if err != nil {
		return nil, err
	}
	if b.Cache == nil {
		return &CacheBlock{Active: true, TTL: 300}, nil
	}
	return b.Cache, nil
}
