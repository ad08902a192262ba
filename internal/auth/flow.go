package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"cypher-server/internal/model"
	"cypher-server/internal/store"
)

type State string

const (
	StateIdentify          State = "IDENTIFY"
	StateOTPPending        State = "OTP_PENDING"
	StateRegister          State = "REGISTER"
	StatePasswordChallenge State = "PASSWORD_CHALLENGE"
	StateAuthenticated     State = "AUTHENTICATED"
)

var (
	ErrInvalidState        = errors.New("operation not valid in current state")
	ErrInvalidIdentifier   = errors.New("invalid identifier")
	ErrInvalidCode         = errors.New("invalid code")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrDeliveryFailed      = errors.New("code delivery failed")
	ErrDisplayNameTooShort = errors.New("display name must be at least 3 characters")
	ErrSecretTooShort      = errors.New("secret must be at least 6 characters")
	ErrSecretMismatch      = errors.New("secrets do not match")
	ErrIdentifierTaken     = errors.New("identifier already registered")
)

const (
	minDisplayNameLen = 3
	minSecretLen      = 6
	minPhoneLen       = 10
)

// AccountStore is the credential-store slice the flow drives.
type AccountStore interface {
	FindAccountByIdentifier(identifier string) (model.Account, bool)
	UpsertAccount(acc model.Account) error
}

// Flow is one multi-step authentication attempt:
//
//	IDENTIFY -> OTP_PENDING -> REGISTER -> AUTHENTICATED   (new identifier)
//	IDENTIFY -> PASSWORD_CHALLENGE -> AUTHENTICATED        (known identifier)
//
// Any state can return to IDENTIFY via Reset. Persistence happens only on
// the REGISTER -> AUTHENTICATED transition.
type Flow struct {
	ID string

	accounts AccountStore
	sender   CodeSender
	now      func() time.Time

	state      State
	persona    model.Persona
	identifier string
	issuedCode string
	accountID  string
}

func NewFlow(accounts AccountStore, sender CodeSender) *Flow {
	return &Flow{
		ID:       uuid.NewString(),
		accounts: accounts,
		sender:   sender,
		now:      time.Now,
		state:    StateIdentify,
	}
}

func (f *Flow) State() State       { return f.state }
func (f *Flow) Identifier() string { return f.identifier }
func (f *Flow) AccountID() string  { return f.accountID }

// IssuedCode exposes the outstanding one-time code so a manual fallback
// delivery path stays possible when dispatch fails.
func (f *Flow) IssuedCode() string { return f.issuedCode }

// SubmitIdentifier normalizes and routes: a known identifier moves to the
// password challenge, an unseen one gets a fresh code dispatched. Each call
// invalidates any previously issued code.
func (f *Flow) SubmitIdentifier(identifier string, p model.Persona) (State, error) {
	if f.state != StateIdentify {
		return f.state, ErrInvalidState
	}
	if !p.Valid() {
		p = model.PersonaStandard
	}

	normalized := store.NormalizeIdentifier(identifier)
	if err := validateIdentifier(normalized); err != nil {
		return f.state, err
	}

	f.identifier = normalized
	f.persona = p

	if acc, ok := f.accounts.FindAccountByIdentifier(normalized); ok {
		f.accountID = acc.ID
		f.issuedCode = ""
		f.state = StatePasswordChallenge
		return f.state, nil
	}

	code, err := GenerateCode()
	if err != nil {
		return f.state, err
	}
	f.issuedCode = code

	if err := f.sender.SendCode(normalized, code); err != nil {
		// The code stays on the flow for a manual-entry fallback.
		return f.state, ErrDeliveryFailed
	}

	f.state = StateOTPPending
	return f.state, nil
}

// SubmitCode verifies the outstanding one-time code. A wrong code keeps
// the flow in OTP_PENDING and keeps the code valid for re-entry; callers
// throttle repeated failures.
func (f *Flow) SubmitCode(code string) (State, error) {
	if f.state != StateOTPPending {
		return f.state, ErrInvalidState
	}
	if f.issuedCode == "" ||
		subtle.ConstantTimeCompare([]byte(code), []byte(f.issuedCode)) != 1 {
		return f.state, ErrInvalidCode
	}

	f.state = StateRegister
	return f.state, nil
}

// CompleteRegistration validates the profile, creates and persists the
// account and terminates the flow.
func (f *Flow) CompleteRegistration(displayName, secret, confirmSecret string) (model.Account, error) {
	if f.state != StateRegister {
		return model.Account{}, ErrInvalidState
	}

	displayName = strings.TrimSpace(displayName)
	if len([]rune(displayName)) < minDisplayNameLen {
		return model.Account{}, ErrDisplayNameTooShort
	}
	if len(secret) < minSecretLen {
		return model.Account{}, ErrSecretTooShort
	}
	if secret != confirmSecret {
		return model.Account{}, ErrSecretMismatch
	}

	// Re-check: another flow may have registered the identifier since.
	if _, ok := f.accounts.FindAccountByIdentifier(f.identifier); ok {
		return model.Account{}, ErrIdentifierTaken
	}

	hash, salt, err := HashSecret(secret)
	if err != nil {
		return model.Account{}, err
	}

	nowMillis := f.now().UnixMilli()
	acc := model.Account{
		ID:             uuid.NewString(),
		Identifier:     f.identifier,
		DisplayName:    displayName,
		SecretHash:     hash,
		SecretSalt:     salt,
		PersonaDefault: f.persona,
		CreatedAt:      nowMillis,
		UpdatedAt:      nowMillis,
	}
	if err := f.accounts.UpsertAccount(acc); err != nil {
		return model.Account{}, err
	}

	f.accountID = acc.ID
	f.issuedCode = ""
	f.state = StateAuthenticated
	return acc, nil
}

// SubmitPassword re-authenticates a known identifier.
func (f *Flow) SubmitPassword(secret string) (model.Account, error) {
	if f.state != StatePasswordChallenge {
		return model.Account{}, ErrInvalidState
	}

	acc, ok := f.accounts.FindAccountByIdentifier(f.identifier)
	if !ok || !VerifySecret(secret, acc.SecretHash, acc.SecretSalt) {
		return model.Account{}, ErrInvalidCredentials
	}

	f.accountID = acc.ID
	f.state = StateAuthenticated
	return acc, nil
}

// Reset returns the flow to IDENTIFY from any state.
func (f *Flow) Reset() {
	f.state = StateIdentify
	f.identifier = ""
	f.issuedCode = ""
	f.accountID = ""
}

func validateIdentifier(normalized string) error {
	if normalized == "" {
		return ErrInvalidIdentifier
	}
	if strings.Contains(normalized, "@") {
		at := strings.IndexByte(normalized, '@')
		if at == 0 || at == len(normalized)-1 {
			return ErrInvalidIdentifier
		}
		return nil
	}
	// Phone path: digits only after stripping separators, minimum length.
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, normalized)
	if len(digits) < minPhoneLen {
		return ErrInvalidIdentifier
	}
	return nil
}
