package shared

import (
	"errors"
	"fmt"
)

// LocationType discriminates stock-holding locations.
type LocationType string

const (
	// LocationWarehouse marks a warehouse location.
	LocationWarehouse LocationType = "warehouse"
	// LocationShop marks a shop location.
	LocationShop LocationType = "shop"
)

// ErrInvalidLocation indicates a malformed location reference.
var ErrInvalidLocation = errors.New("shared: invalid location")

// Location identifies exactly one warehouse or shop. The tagged struct stands
// in for the warehouse-xor-shop pair of nullable foreign keys the stock tables
// would otherwise carry.
type Location struct {
	Type LocationType `json:"type"`
	ID   int64        `json:"id"`
}

// Warehouse builds a warehouse location.
func Warehouse(id int64) Location {
	return Location{Type: LocationWarehouse, ID: id}
}

// Shop builds a shop location.
func Shop(id int64) Location {
	return Location{Type: LocationShop, ID: id}
}

// ParseLocation validates a raw type/id pair.
func ParseLocation(typ string, id int64) (Location, error) {
	loc := Location{Type: LocationType(typ), ID: id}
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// Validate checks the location carries a known type and a positive id.
func (l Location) Validate() error {
	if l.ID <= 0 {
		return ErrInvalidLocation
	}
	switch l.Type {
	case LocationWarehouse, LocationShop:
		return nil
	default:
		return ErrInvalidLocation
	}
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.Type == "" && l.ID == 0
}

// Key renders a stable map/cache key for the location.
func (l Location) Key() string {
	return fmt.Sprintf("%s:%d", l.Type, l.ID)
}

func (l Location) String() string {
	return l.Key()
}
