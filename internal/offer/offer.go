package offer

import (
	"net/url"
)

// Offer represents a single private accommodation offer
type Offer struct {
	ID       string `json:"id"`
	Link     string `json:"link"`
	Address  string `json:"address"`
	RoomType string `json:"room_type"`
	Cost     string `json:"cost"`
	NRooms   string `json:"n_rooms"`
	Size     string `json:"size"`
}

// NewOffer builds an Offer from the seven column values in table order:
// id, link, address, room type, cost, number of rooms, size.
func NewOffer(id, link, address, roomType, cost, nRooms, size string) *Offer {
	return &Offer{
		ID:       id,
		Link:     link,
		Address:  address,
		RoomType: roomType,
		Cost:     cost,
		NRooms:   nRooms,
		Size:     size,
	}
}

// URL resolves the offer link against base. The stored Link is left untouched;
// if either value fails to parse the raw link is returned.
func (o *Offer) URL(base string) string {
	ref, err := url.Parse(o.Link)
	if err != nil {
		return o.Link
	}
	if ref.IsAbs() || base == "" {
		return o.Link
	}
	b, err := url.Parse(base)
	if err != nil {
		return o.Link
	}
	return b.ResolveReference(ref).String()
}

// IDs returns the offer IDs in list order, duplicates included
func IDs(offers []*Offer) []string {
	ids := make([]string, 0, len(offers))
	for _, o := range offers {
		ids = append(ids, o.ID)
	}
	return ids
}

// Index builds an ID → Offer map. Later entries overwrite earlier ones with the same ID.
func Index(offers []*Offer) map[string]*Offer {
	idx := make(map[string]*Offer, len(offers))
	for _, o := range offers {
		idx[o.ID] = o
	}
	return idx
}

// SkippedRow records a table row that could not be turned into an Offer
type SkippedRow struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ParseResult is the outcome of parsing one offers page
type ParseResult struct {
	Offers  []*Offer     `json:"offers"`
	Skipped []SkippedRow `json:"skipped,omitempty"`
}
