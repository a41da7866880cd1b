package domain

// assetList is an insertion-ordered set of assignments keyed by (id, countryCode),
// with an index of countries per asset id for conflict lookups.
type assetList struct {
	entries   []Asset
	positions map[Asset]int
	countries map[AssetID][]CountryCode
}

func newAssetList(capacity int) assetList {
	return assetList{
		entries:   make([]Asset, 0, capacity),
		positions: make(map[Asset]int, capacity),
		countries: make(map[AssetID][]CountryCode, capacity),
	}
}

func (l *assetList) len() int {
	return len(l.entries)
}

func (l *assetList) contains(asset Asset) bool {
	_, ok := l.positions[asset]
	return ok
}

// countriesOf returns the countries asset.ID is assigned in, in insertion order.
func (l *assetList) countriesOf(id AssetID) []CountryCode {
	return l.countries[id]
}

// add appends asset; it reports false and changes nothing for an existing assignment.
func (l *assetList) add(asset Asset) bool {
	if l.contains(asset) {
		return false
	}
	l.positions[asset] = len(l.entries)
	l.entries = append(l.entries, asset)
	l.countries[asset.ID] = append(l.countries[asset.ID], asset.CountryCode)
	return true
}

// remove deletes the exact assignment and reports whether it was present.
func (l *assetList) remove(asset Asset) bool {
	pos, ok := l.positions[asset]
	if !ok {
		return false
	}

	l.entries = append(l.entries[:pos], l.entries[pos+1:]...)
	delete(l.positions, asset)
	for i := pos; i < len(l.entries); i++ {
		l.positions[l.entries[i]] = i
	}

	countries := l.countries[asset.ID]
	kept := countries[:0]
	for _, c := range countries {
		if c != asset.CountryCode {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(l.countries, asset.ID)
	} else {
		l.countries[asset.ID] = kept
	}
	return true
}

func (l *assetList) snapshot() []Asset {
	out := make([]Asset, len(l.entries))
	copy(out, l.entries)
	return out
}
