package domain

import (
	"context"
	"encoding/json"
)

// Channel is the streaming channel linked to an identity profile.
type Channel struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Profile is what the identity provider returns for a credential.
// It is cached verbatim as JSON.
type Profile struct {
	AccountID   string   `json:"accountId"`
	DisplayName string   `json:"displayName"`
	ChannelID   string   `json:"channelId,omitempty"`
	Channel     *Channel `json:"channel,omitempty"`
}

// UnmarshalJSON also accepts the account id under "id" when "accountId" is absent.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type plain Profile
	var raw struct {
		plain
		LegacyID string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Profile(raw.plain)
	if p.AccountID == "" {
		p.AccountID = raw.LegacyID
	}
	return nil
}

// Linked reports whether the profile is bound to a channel.
func (p *Profile) Linked() bool {
	return p != nil && p.ChannelID != "" && p.Channel != nil
}

type LookupStatus int

const (
	LookupMiss LookupStatus = iota
	LookupHit
	LookupError
)

func (s LookupStatus) String() string {
	switch s {
	case LookupHit:
		return "hit"
	case LookupError:
		return "error"
	default:
		return "miss"
	}
}

// Lookup is the result of a cache read. Profile is set only on LookupHit;
// Err is set only on LookupError. Callers treat anything but a hit as a miss.
type Lookup struct {
	Status  LookupStatus
	Profile *Profile
	Err     error
}

func Hit(p *Profile) Lookup { return Lookup{Status: LookupHit, Profile: p} }
func Miss() Lookup { return Lookup{Status: LookupMiss} }
func LookupFailed(err error) Lookup { return Lookup{Status: LookupError, Err: err} }

// ProfileCache stores identity profiles under a credential digest with a fixed TTL.
type ProfileCache interface {
	Get(ctx context.Context, digest string) Lookup
	Set(ctx context.Context, digest string, profile *Profile) error
}

// IdentityProvider resolves an opaque credential to the caller's profile.
type IdentityProvider interface {
	Viewer(ctx context.Context, credential string) (*Profile, error)
}
