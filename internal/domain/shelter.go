package domain

// Shelter is one row of the evacuation shelter directory.
type Shelter struct {
	ID            int64   `json:"-"`
	Name          string  `json:"name" validate:"required"`
	Address       string  `json:"address"`
	City          string  `json:"city"`
	County        string  `json:"county"`
	ZipCode       string  `json:"zip_code" validate:"max=10"`
	Latitude      float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude     float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Capacity      *int    `json:"capacity"`
	IsPetFriendly bool    `json:"is_pet_friendly"`
	Notes         string  `json:"notes"`
	ShelterType   string  `json:"shelter_type"`
	Status        string  `json:"status"`
}

// HasCoordinates reports whether the shelter has a usable position.
func (s Shelter) HasCoordinates() bool {
	return s.Latitude != 0 || s.Longitude != 0
}

// ShelterFilter narrows a shelter listing. Zero values do not filter.
type ShelterFilter struct {
	County      string
	PetFriendly *bool
}
