package models

// Verification code purposes.
const (
	CodeTypeRegister = "register"
	CodeTypeReset    = "reset"
)

// VerificationCodeRequest asks for a code to be sent to an email or phone.
type VerificationCodeRequest struct {
	Email string `json:"email" validate:"required_without=Phone,omitempty,email"`
	Phone string `json:"phone" validate:"required_without=Email,omitempty,min=5,max=20"`
	Type  string `json:"type" validate:"required,oneof=register reset"`
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Username         string `json:"username" validate:"required,min=2,max=64"`
	Email            string `json:"email" validate:"required_without=Phone,omitempty,email"`
	Phone            string `json:"phone" validate:"required_without=Email,omitempty,min=5,max=20"`
	Password         string `json:"password" validate:"required,min=6"`
	VerificationCode string `json:"verificationCode" validate:"required,len=6,numeric"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required_without=Phone,omitempty,email"`
	Phone    string `json:"phone" validate:"required_without=Email"`
	Password string `json:"password" validate:"required"`
}

// ResetPasswordRequest completes a password reset with a verification code.
type ResetPasswordRequest struct {
	Email            string `json:"email" validate:"required_without=Phone,omitempty,email"`
	Phone            string `json:"phone" validate:"required_without=Email"`
	VerificationCode string `json:"verificationCode" validate:"required,len=6,numeric"`
	NewPassword      string `json:"newPassword" validate:"required,min=6"`
}

// AuthResult returns the account and its first-party token.
type AuthResult struct {
	User  UserInfo `json:"user"`
	Token string   `json:"token"`
}

// VerificationCode is the stored state of an issued code.
type VerificationCode struct {
	Code      string `json:"code"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	ExpiresAt int64  `json:"expiresAt"`
	Attempts  int    `json:"attempts,omitempty"`
}

// Identifier returns the email when present, else the phone.
func Identifier(email, phone string) string {
	if email != "" {
		return email
	}
	return phone
}

// VerificationCodeKey is the storage key of the code issued for identifier.
func VerificationCodeKey(identifier string) string {
	return "code_" + identifier
}

// VerificationCodeIndexKey holds the expiry of every outstanding code, keyed by identifier.
const VerificationCodeIndexKey = "code_index"
