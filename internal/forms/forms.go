// Package forms holds the login and registration form state. Submit never
// panics or escapes an error to a global handler: the outcome is written to
// the form's Error field for inline display and also returned.
package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/services"
	"aiworker/dashboard-go/internal/session"
)

const (
	loginFailed        = "Login failed"
	loginRequired      = "Email and password are required"
	registerRequired   = "All fields are required"
	registerMismatch   = "Passwords do not match"
	registerFailed     = "Registration failed"
	registeredTemplate = "Registered: %s (%s)"
)

// ValidationError is a client-side check that failed before any request was
// made. It matches services.ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == services.ErrValidation
}

// Authenticator is the part of the API client the forms call.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (models.LoginResponse, error)
	Register(ctx context.Context, name, email, password string) (models.User, error)
}

// SessionWriter receives the token and user of a successful login.
type SessionWriter interface {
	Login(ctx context.Context, token string, user models.User) error
}

type LoginForm struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	Error      string `json:"-"`
	Submitting bool   `json:"-"`
}

// Submit validates the fields, calls the backend and on success stores the
// session. On any failure the session is left untouched and Error carries the
// backend detail or a generic message.
func (f *LoginForm) Submit(ctx context.Context, api Authenticator, s SessionWriter, log *zap.Logger) (models.User, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f.Error = ""
	email := strings.TrimSpace(f.Email)
	if email == "" || f.Password == "" {
		err := &ValidationError{Field: requiredField(email), Message: loginRequired}
		f.Error = err.Message
		return models.User{}, err
	}

	f.Submitting = true
	defer func() { f.Submitting = false }()

	res, err := api.Login(ctx, email, f.Password)
	if err != nil {
		f.Error = services.DetailOr(err, loginFailed)
		log.Info("login rejected", zap.String("email", email), zap.Error(err))
		return models.User{}, err
	}
	user := res.User
	if user.Email == "" {
		user.Email = email
	}
	if err := s.Login(ctx, res.AccessToken, user); err != nil {
		if errors.Is(err, session.ErrEmptyToken) {
			f.Error = loginFailed
			return models.User{}, err
		}
		// The in-memory session is set; only persistence failed.
		log.Warn("session not persisted", zap.Error(err))
	}
	f.Password = ""
	log.Info("logged in", zap.String("email", user.Email))
	return user, nil
}

func requiredField(email string) string {
	if email == "" {
		return "email"
	}
	return "password"
}

type RegisterForm struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	ShowPasswords   bool   `json:"-"`

	Error      string `json:"-"`
	Notice     string `json:"-"`
	Submitting bool   `json:"-"`
}

// Validate runs the client-side checks. It never touches the network.
func (f *RegisterForm) Validate() error {
	fields := []struct{ name, val string }{
		{"name", strings.TrimSpace(f.Name)},
		{"email", strings.TrimSpace(f.Email)},
		{"password", f.Password},
		{"confirm_password", f.ConfirmPassword},
	}
	for _, fl := range fields {
		if fl.val == "" {
			return &ValidationError{Field: fl.name, Message: registerRequired}
		}
	}
	if f.Password != f.ConfirmPassword {
		return &ValidationError{Field: "confirm_password", Message: registerMismatch}
	}
	return nil
}

func (f *RegisterForm) ToggleShowPasswords() {
	f.ShowPasswords = !f.ShowPasswords
}

// Submit validates and then creates the account. Registration does not log
// the user in.
func (f *RegisterForm) Submit(ctx context.Context, api Authenticator, log *zap.Logger) (models.User, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f.Error, f.Notice = "", ""
	if err := f.Validate(); err != nil {
		f.Error = err.Error()
		return models.User{}, err
	}

	f.Submitting = true
	defer func() { f.Submitting = false }()

	name, email := strings.TrimSpace(f.Name), strings.TrimSpace(f.Email)
	user, err := api.Register(ctx, name, email, f.Password)
	if err != nil {
		f.Error = services.DetailOr(err, registerFailed)
		log.Info("registration rejected", zap.String("email", email), zap.Error(err))
		return models.User{}, err
	}
	if user.Email == "" {
		user.Email = email
	}
	if user.Name == "" {
		user.Name = name
	}
	f.Notice = fmt.Sprintf(registeredTemplate, user.Name, user.Email)
	f.Password, f.ConfirmPassword = "", ""
	return user, nil
}
