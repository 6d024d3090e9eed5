package domain

// Identity is the authenticated caller as extracted from a verified token.
// Email is always set; Name may be empty when the provider omits the claim.
type Identity struct {
	Email string
	Name  string
}
