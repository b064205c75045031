package server

import "encoding/json"

// Identity is the decoded session payload handed to resource handlers.
type Identity struct {
	Email   string
	Name    string
	Picture string
	// ProviderTokens is the opaque Google credential bundle carried inside
	// the session token. The auth core only transports it; downstream
	// resource handlers hand it back to the provider's APIs.
	ProviderTokens json.RawMessage
}

// ProviderUser consolidates profile data returned by the upstream provider.
// Name and Picture are optional upstream and default to empty strings.
type ProviderUser struct {
	Email   string
	Name    string
	Picture string
}
