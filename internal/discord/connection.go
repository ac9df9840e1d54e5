package discord

import "encoding/json"

// ConnectionsRoute lists accounts the user linked to Discord.
const ConnectionsRoute = "/users/@me/connections"

// Visibility values of a connection.
const (
	VisibilityNone     = 0
	VisibilityEveryone = 1
)

// UserConnection is an external account linked to the Discord user.
type UserConnection struct {
	ID           string // account ID on the external service
	Name         string // account name on the external service
	Type         string // service, e.g. "twitch", "github"
	Verified     bool
	Revoked      bool
	FriendSync   bool
	ShowActivity bool
	Visibility   int
	Integrations []Integration
}

// Integration is a guild integration attached to a connection.
type Integration struct {
	ID      Snowflake
	Name    string
	Type    string
	Enabled bool
	Account IntegrationAccount
}

type IntegrationAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type connectionPayload struct {
	ID           *string              `json:"id"`
	Name         string               `json:"name"`
	Type         *string              `json:"type"`
	Verified     bool                 `json:"verified"`
	Revoked      bool                 `json:"revoked"`
	FriendSync   bool                 `json:"friend_sync"`
	ShowActivity bool                 `json:"show_activity"`
	Visibility   int                  `json:"visibility"`
	Integrations []integrationPayload `json:"integrations"`
}

type integrationPayload struct {
	ID      *Snowflake         `json:"id"`
	Name    string             `json:"name"`
	Type    string             `json:"type"`
	Enabled bool               `json:"enabled"`
	Account IntegrationAccount `json:"account"`
}

// DecodeConnections decodes a /users/@me/connections payload. id and type
// are required on every entry.
func DecodeConnections(data []byte) ([]UserConnection, error) {
	var payload []connectionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, malformed("connections: %v", err)
	}

	conns := make([]UserConnection, 0, len(payload))
	for i, p := range payload {
		if p.ID == nil {
			return nil, malformed("connections[%d]: missing id", i)
		}
		if p.Type == nil {
			return nil, malformed("connections[%d]: missing type", i)
		}
		c := UserConnection{
			ID:           *p.ID,
			Name:         p.Name,
			Type:         *p.Type,
			Verified:     p.Verified,
			Revoked:      p.Revoked,
			FriendSync:   p.FriendSync,
			ShowActivity: p.ShowActivity,
			Visibility:   p.Visibility,
		}
		for j, in := range p.Integrations {
			if in.ID == nil {
				return nil, malformed("connections[%d].integrations[%d]: missing id", i, j)
			}
			c.Integrations = append(c.Integrations, Integration{
				ID:      *in.ID,
				Name:    in.Name,
				Type:    in.Type,
				Enabled: in.Enabled,
				Account: in.Account,
			})
		}
		conns = append(conns, c)
	}

	return conns, nil
}
