package domain

import "time"

// BankConnection links a user to the Gmail mailbox that receives their bank notifications.
type BankConnection struct {
	UserID          string    `json:"userId"`
	GmailAddress    string    `json:"gmailAddress"`
	RefreshToken    string    `json:"-"`
	HistoryID       uint64    `json:"historyId"`
	WatchExpiration time.Time `json:"watchExpiration"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ProcessedEmailMarker records that a Gmail message has been fully handled.
// Its presence is the only signal used to decide whether a message is new.
type ProcessedEmailMarker struct {
	GmailMessageID string
	UserID         string
	ProcessedAt    time.Time
}

// BankEmailProfile describes how to recognise and read one bank's notification emails.
type BankEmailProfile struct {
	ID                     string    `json:"id"`
	BankName               string    `json:"bankName"`
	SenderPatterns         []string  `json:"senderPatterns"`
	ExtractionInstructions string    `json:"extractionInstructions"`
	ExampleImageURL        string    `json:"exampleImageUrl,omitempty"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// IdentityKey associates a banking API public key with a user.
type IdentityKey struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PublicKey string    `json:"publicKey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// User is the subset of account data the ingestion backend needs.
type User struct {
	ID    string
	Email string
	Role  string
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleRoot  = "root"
)

// IsAdmin reports whether role may manage bank profiles.
func IsAdmin(role string) bool {
	return role == RoleAdmin || role == RoleRoot
}
