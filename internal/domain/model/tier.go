package model

// TierGroup is one contiguous run of players judged to have similar value.
type TierGroup struct {
	Tier     int      `json:"tier"`
	Players  []Player `json:"players"`
	AvgValue float64  `json:"avgValue"`
	MinRank  int      `json:"minRank"`
	MaxRank  int      `json:"maxRank"`
}

// CacheStatus classifies a cache slot by age. It is derived on every read.
type CacheStatus string

// Cache statuses, best to worst.
const (
	StatusFresh   CacheStatus = "fresh"
	StatusStale   CacheStatus = "stale"
	StatusExpired CacheStatus = "expired"
	StatusMissing CacheStatus = "missing"
)

// Weight orders statuses: fresh > stale > expired > missing.
func (s CacheStatus) Weight() int {
	switch s {
	case StatusFresh:
		return 3
	case StatusStale:
		return 2
	case StatusExpired:
		return 1
	default:
		return 0
	}
}

// NeedsRefresh reports whether a slot in this status should be refetched.
func (s CacheStatus) NeedsRefresh() bool {
	return s != StatusFresh
}
