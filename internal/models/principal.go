package models

type PrincipalKind string

const (
	PrincipalUser      PrincipalKind = "user"
	PrincipalAdmin     PrincipalKind = "admin"
	PrincipalKeyBearer PrincipalKind = "key_bearer"
)

// Principal is the identity resolved for a request. It is always derived
// server-side from a session cookie or an API key.
type Principal struct {
	Kind      PrincipalKind
	Account   Account
	SessionID string
	KeySlot   KeySlot
}

func (p Principal) IsAdmin() bool {
	return p.Kind == PrincipalAdmin
}
