package domain

// Stats carries the landing page aggregates.
type Stats struct {
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
}
