package domain

// Member represents connection's participation meta.
// No transport or lifecycle logic here.
type Member struct {
	// Claimed is the user proven by the bearer token at upgrade time.
	// Zero when authentication is disabled.
	Claimed    UserID
	RemoteAddr string
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(claimed UserID, remoteAddr string) *Member {
	return &Member{Claimed: claimed, RemoteAddr: remoteAddr}
}
