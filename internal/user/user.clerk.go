package user

import "encoding/json"

// ClerkWebhookEvent is the envelope Clerk posts to /webhooks/clerk.
type ClerkWebhookEvent struct {
	Type   string          `json:"type"`
	Object string          `json:"object"`
	Data   json.RawMessage `json:"data"`
}

type ClerkEmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
	Verification struct {
		Status string `json:"status"`
	} `json:"verification"`
}

type ClerkUserData struct {
	ID                    string              `json:"id"`
	Username              string              `json:"username"`
	FirstName             string              `json:"first_name"`
	LastName              string              `json:"last_name"`
	ImageURL              string              `json:"image_url"`
	ProfileImageURL       string              `json:"profile_image_url"`
	PrimaryEmailAddressID string              `json:"primary_email_address_id"`
	EmailAddresses        []ClerkEmailAddress `json:"email_addresses"`
}

// PrimaryEmail returns the primary address, or the first one when Clerk did
// not mark a primary.
func (d ClerkUserData) PrimaryEmail() (ClerkEmailAddress, bool) {
	for _, e := range d.EmailAddresses {
		if e.ID == d.PrimaryEmailAddressID {
			return e, true
		}
	}
	if len(d.EmailAddresses) > 0 {
		return d.EmailAddresses[0], true
	}
	return ClerkEmailAddress{}, false
}

// ClerkSessionData is the payload of session.* events.
type ClerkSessionData struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
}
