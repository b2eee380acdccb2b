package market

import "fmt"

// listingStore maps asset ids to active listings. At most one listing may
// exist per asset at a time; insert refuses duplicates and get/remove refuse
// absent keys so the engine's lifecycle checks cannot be bypassed.
//
// Not safe for concurrent use on its own; the engine serializes access.
type listingStore struct {
	byAsset map[string]*Listing
}

func newListingStore() *listingStore {
	return &listingStore{byAsset: make(map[string]*Listing)}
}

func (s *listingStore) contains(assetID string) bool {
	_, ok := s.byAsset[assetID]
	return ok
}

func (s *listingStore) insert(l *Listing) error {
	if _, ok := s.byAsset[l.AssetID]; ok {
		return fmt.Errorf("asset %q: %w", l.AssetID, ErrAlreadyListed)
	}
	s.byAsset[l.AssetID] = l
	return nil
}

func (s *listingStore) get(assetID string) (*Listing, error) {
	l, ok := s.byAsset[assetID]
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", assetID, ErrAlreadyClaimed)
	}
	return l, nil
}

func (s *listingStore) remove(assetID string) (*Listing, error) {
	l, ok := s.byAsset[assetID]
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", assetID, ErrAlreadyClaimed)
	}
	delete(s.byAsset, assetID)
	return l, nil
}

func (s *listingStore) all() []*Listing {
	out := make([]*Listing, 0, len(s.byAsset))
	for _, l := range s.byAsset {
		out = append(out, l)
	}
	return out
}
