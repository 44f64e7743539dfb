// README: User profile stored under the Firebase auth uid.
package profile

import (
	"strings"
	"time"

	"ridepool/internal/types"
)

// Profile fields other than FullName and Phone are free text and may be empty.
type Profile struct {
	UID                      types.ID  `json:"uid" firestore:"-"`
	FullName                 string    `json:"fullName" firestore:"fullName"`
	Email                    string    `json:"email" firestore:"email"`
	Phone                    string    `json:"phone" firestore:"phone"`
	Gender                   string    `json:"gender" firestore:"gender"`
	Age                      string    `json:"age" firestore:"age"`
	Address                  string    `json:"address" firestore:"address"`
	EmergencyContact         string    `json:"emergencyContact" firestore:"emergencyContact"`
	PreferredPickupLocations string    `json:"preferredPickupLocations" firestore:"preferredPickupLocations"`
	PreferredDropLocations   string    `json:"preferredDropLocations" firestore:"preferredDropLocations"`
	FCMTokens                []string  `json:"-" firestore:"fcmTokens"`
	CreatedAt                time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt                time.Time `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

// DisplayName is the full name, or the email when no name was saved.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	return p.Email
}
