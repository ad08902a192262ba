package model

// Persona selects the assistant's tone, model tier and safety posture.
type Persona string

const (
	PersonaStandard Persona = "STANDARD"
	PersonaHacker   Persona = "HACKER"
)

func (p Persona) Valid() bool {
	return p == PersonaStandard || p == PersonaHacker
}

// QuotaState tracks persona-restricted usage for one calendar day.
// LastResetDate is formatted YYYY-MM-DD in server-local time.
type QuotaState struct {
	Count         int    `json:"count"`
	LastResetDate string `json:"lastResetDate"`
}

type Account struct {
	ID             string     `json:"id"`
	Identifier     string     `json:"identifier"` // normalized email/phone, unique
	DisplayName    string     `json:"displayName"`
	SecretHash     string     `json:"secretHash"`
	SecretSalt     string     `json:"secretSalt"`
	PhotoURL       string     `json:"photoUrl,omitempty"`
	PersonaDefault Persona    `json:"personaDefault"`
	Quota          QuotaState `json:"quota"`
	CreatedAt      int64      `json:"createdAt"`
	UpdatedAt      int64      `json:"updatedAt"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment carries inline binary data for a user message, base64-encoded.
type Attachment struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

type ChatMessage struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Timestamp   int64        `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Session is an ordered conversation owned by one (account, persona) pair
// for its whole lifetime. Messages are append-only.
type Session struct {
	ID          string        `json:"id"`
	AccountID   string        `json:"accountId"`
	Persona     Persona       `json:"persona"`
	Title       string        `json:"title"`
	Messages    []ChatMessage `json:"messages"`
	CreatedAt   int64         `json:"createdAt"`
	LastUpdated int64         `json:"lastUpdated"`
}
