package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pagecraft/pagecraft/internal/apperror"
	"github.com/pagecraft/pagecraft/internal/sanitize"
)

// msgBadCredentials is shared by the unknown-email and wrong-password paths
// so responses do not reveal which accounts exist.
const msgBadCredentials = "email or password incorrect"

const (
	minNewPasswordLength = 6
	maxDisplayNameLength = 100
)

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository or the
// session store directly.
type AuthService interface {
	// SignIn checks credentials and, on success, opens a session.
	SignIn(ctx context.Context, input SignInInput, cookies CookieJar) (*UserSummary, error)

	// LogOut ends the caller's session. It never fails from the caller's
	// point of view.
	LogOut(ctx context.Context, cookies CookieJar) error

	// CurrentUser loads the account behind a session.
	CurrentUser(ctx context.Context, session *UserSession) (*UserSummary, error)

	// CreateRoleUser lets an admin create an admin or moderator account.
	CreateRoleUser(ctx context.Context, actor *UserSession, input CreateUserInput) (*UserSummary, error)

	// BootstrapAdmin creates the given admin account unless its email is
	// already registered. Reports whether an account was created.
	BootstrapAdmin(ctx context.Context, input CreateUserInput) (bool, error)
}

// authService implements AuthService.
type authService struct {
	repo     UserRepository
	hasher   PasswordHasher
	sessions SessionService

	// dummyHash is verified against when the email is unknown so both
	// failure paths spend the same time in bcrypt.
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(repo UserRepository, hasher PasswordHasher, sessions SessionService) AuthService {
	return &authService{
		repo:     repo,
		hasher:   hasher,
		sessions: sessions,
	}
}

// SignIn implements AuthService.
func (s *authService) SignIn(ctx context.Context, input SignInInput, cookies CookieJar) (*UserSummary, error) {
	email := strings.TrimSpace(input.Email)

	fields := map[string]string{}
	if !isValidEmail(email) {
		fields["email"] = "Invalid email format"
	}
	if input.Password == "" {
		fields["password"] = "Password is required"
	}
	if len(fields) > 0 {
		return nil, apperror.NewValidation("invalid sign-in details", fields)
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			s.burnVerify(input.Password)
			return nil, apperror.NewUnauthorized(msgBadCredentials)
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	ok, err := s.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("verifying password for user %s: %w", user.ID, err))
	}
	if !ok {
		return nil, apperror.NewUnauthorized(msgBadCredentials)
	}

	if !user.Role.IsPrivileged() {
		return nil, apperror.NewForbidden("this account does not have editor access")
	}

	if err := s.sessions.CreateUserSession(ctx, user, cookies); err != nil {
		return nil, apperror.NewInternal(err)
	}

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return user.Summary(), nil
}

// LogOut implements AuthService. Store failures are logged; the cookie has
// already been cleared by then.
func (s *authService) LogOut(ctx context.Context, cookies CookieJar) error {
	if err := s.sessions.RemoveUserFromSession(ctx, cookies); err != nil {
		slog.Error("failed to delete session from store", slog.Any("error", err))
	}
	return nil
}

// CurrentUser implements AuthService.
func (s *authService) CurrentUser(ctx context.Context, session *UserSession) (*UserSummary, error) {
	if session == nil {
		return nil, apperror.NewUnauthorized("authentication required")
	}

	user, err := s.repo.FindByID(ctx, session.ID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewUnauthorized("authentication required")
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	// Report the role the session was issued with; that is what the route
	// guard enforces.
	summary := user.Summary()
	summary.Role = session.Role
	return summary, nil
}

// CreateRoleUser implements AuthService.
func (s *authService) CreateRoleUser(ctx context.Context, actor *UserSession, input CreateUserInput) (*UserSummary, error) {
	if actor == nil {
		return nil, apperror.NewUnauthorized("admin authentication required")
	}
	if actor.Role != RoleAdmin {
		return nil, apperror.NewForbidden("only admins can create accounts")
	}

	user, err := s.createUser(ctx, input)
	if err != nil {
		return nil, err
	}

	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
		slog.String("created_by", actor.ID),
	)
	return user.Summary(), nil
}

// BootstrapAdmin implements AuthService.
func (s *authService) BootstrapAdmin(ctx context.Context, input CreateUserInput) (bool, error) {
	input.Role = RoleAdmin

	user, err := s.createUser(ctx, input)
	if err != nil {
		if appErr, ok := apperror.As(err); ok && appErr.Type == apperror.KindConflict {
			return false, nil
		}
		return false, err
	}

	slog.Info("bootstrap admin created", slog.String("user_id", user.ID))
	return true, nil
}

// createUser validates input, checks uniqueness, hashes, and persists.
func (s *authService) createUser(ctx context.Context, input CreateUserInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	displayName := sanitize.PlainText(input.DisplayName)

	fields := map[string]string{}
	if !isValidEmail(email) {
		fields["email"] = "Invalid email format"
	}
	switch {
	case displayName == "":
		fields["display_name"] = "User name is required"
	case utf8.RuneCountInString(displayName) > maxDisplayNameLength:
		fields["display_name"] = "User name must be at most 100 characters"
	}
	switch {
	case utf8.RuneCountInString(input.Password) < minNewPasswordLength:
		fields["password"] = "Password must be at least 6 characters long"
	case s.hasher.IsTooLong(input.Password):
		fields["password"] = "Password is too long"
	}
	if !input.Role.IsPrivileged() {
		fields["role"] = "Role must be admin or mod"
	}
	if len(fields) > 0 {
		return nil, apperror.NewValidation("invalid account details", fields)
	}

	// Check uniqueness before doing expensive hashing.
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		Role:         input.Role,
		PasswordHash: hash,
		JoinedAt:     time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}
	return user, nil
}

// burnVerify runs a password check against a throwaway digest.
func (s *authService) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("pagecraft-timing-equalizer")
		if err != nil {
			slog.Warn("failed to prepare dummy hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

// isValidEmail accepts a bare addr-spec such as "a@x.com". Display-name
// forms like "A <a@x.com>" are rejected.
func isValidEmail(email string) bool {
	if email == "" || len(email) > 255 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	_, domain, _ := strings.Cut(email, "@")
	return strings.Contains(domain, ".")
}

