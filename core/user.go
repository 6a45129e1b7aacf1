package core

import "time"

// User is an account created on first wallet sign-in
type User struct {
	ID                string     `json:"id"`
	Username          string     `json:"username,omitempty"`
	FullName          string     `json:"fullName,omitempty"`
	ProfileCompleted  bool       `json:"profileCompleted"`
	TermsAcceptedAt   *time.Time `json:"termsAcceptedAt,omitempty"`
	PrivacyAcceptedAt *time.Time `json:"privacyAcceptedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// ConnectedWallet links a verified address on a chain to a user
type ConnectedWallet struct {
	ID         string     `json:"id"`
	UserID     string     `json:"-"`
	Address    string     `json:"address"`
	Chain      ChainID    `json:"chain"`
	Provider   ProviderID `json:"provider"`
	Label      string     `json:"label,omitempty"`
	IsPrimary  bool       `json:"isPrimary"`
	IsVerified bool       `json:"isVerified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ProfileUpdate carries the fields accepted by profile completion
type ProfileUpdate struct {
	Username       string
	FullName       string
	AgreeToTerms   bool
	AgreeToPrivacy bool
}
