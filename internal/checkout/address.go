package checkout

import "strings"

type Address struct {
	ID               string  `json:"id"`
	Alias            string  `json:"alias"`
	Formatted        string  `json:"formatted"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	AuthPersonName   string  `json:"authPersonName"`
	AuthPersonMobile string  `json:"authPersonMobile"`
	IsDefault        bool    `json:"isDefault"`
}

func (a Address) HasPhone() bool {
	return strings.TrimSpace(a.AuthPersonMobile) != ""
}

// DefaultAddress returns the first address marked default, else the first one.
func DefaultAddress(addrs []Address) (Address, bool) {
	if len(addrs) == 0 {
		return Address{}, false
	}
	for _, a := range addrs {
		if a.IsDefault {
			return a, true
		}
	}
	return addrs[0], true
}
