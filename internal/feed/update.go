package feed

import (
	"time"

	"loop-dash/internal/market"
)

// Update is the JSON frame pushed to dashboard clients on every snapshot.
type Update struct {
	UpdatedAt time.Time       `json:"updatedAt"`
	Loading   bool            `json:"loading"`
	FromCache bool            `json:"fromCache,omitempty"`
	Error     string          `json:"error,omitempty"`
	Markets   []market.Market `json:"markets"`
}

func FromSnapshot(snap market.Snapshot) Update {
	u := Update{
		UpdatedAt: snap.UpdatedAt,
		Loading:   snap.Loading,
		FromCache: snap.FromCache,
		Markets:   snap.Markets,
	}
	if snap.Err != nil {
		u.Error = snap.Err.Error()
	}
	if u.Markets == nil {
		u.Markets = []market.Market{}
	}
	return u
}
