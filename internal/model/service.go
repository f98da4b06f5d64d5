package model

// Service is a bookable medical service.  DurationMinutes overrides the
// doctor's default slot length when set.
type Service struct {
	ID              uint64 `json:"id"`
	Name            string `json:"name"`
	DurationMinutes *int   `json:"duration_minutes"`
}

// SearchOptions feeds the patient search form.
type SearchOptions struct {
	Services []Service `json:"services"`
	Cities   []string  `json:"cities"`
}
