package units

import "errors"

// Unit is a physical store with its own cash drawer.
type Unit struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Active   bool   `json:"active"`
}

// AllUnitsLabel is the display name used for the group-wide scope.
const AllUnitsLabel = "All units"

// ErrNotFound indicates the unit does not exist.
var ErrNotFound = errors.New("units: not found")
