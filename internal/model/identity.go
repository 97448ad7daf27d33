package model

import "slices"

// ConnID is an opaque handle for one live connection
type ConnID string

// Identity is the authenticated record bound to a live connection
type Identity struct {
	Username    string
	DisplayName string
	Token       string
	Email       string
	LastGameID  GameID
	Friends     []string
	LobbyID     LobbyID
}

// Clone returns a deep copy of the identity
func (i *Identity) Clone() *Identity {
	c := *i
	c.Friends = slices.Clone(i.Friends)
	return &c
}

// IdentityFromAccount builds the identity for a freshly authenticated account
func IdentityFromAccount(a *Account, token string) *Identity {
	return &Identity{
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Token:       token,
		Email:       a.Email,
		LastGameID:  a.LastGameID,
		Friends:     slices.Clone(a.Friends),
	}
}
