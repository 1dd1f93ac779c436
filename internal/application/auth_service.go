package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
)

const minPasswordLength = 8

// SignUpParams carries the data needed to register an account.
type SignUpParams struct {
	Email       string
	Password    string
	DisplayName string
}

// SignInResult is returned by a successful SignIn.
type SignInResult struct {
	User    domain.User
	Session domain.Session
}

// ProfilePatch updates the provided profile fields.
type ProfilePatch struct {
	DisplayName  *string
	Bio          *string
	City         *string
	AvatarURL    *string
	Instruments  *[]domain.InstrumentSkill
	Genres       *[]string
	Contact      *domain.ContactInfo
	SearchStatus *domain.SearchStatus
}

// AuthConfig tunes the AuthService.
type AuthConfig struct {
	Hasher         *PasswordHasher
	TokenGenerator func() string
	SessionTTL     time.Duration
	// CacheTTL bounds how long a resolved token skips the store.
	CacheTTL time.Duration
}

// AuthService resolves the current user and manages accounts and sessions.
type AuthService struct {
	service
	hasher         *PasswordHasher
	tokenGenerator func() string
	sessionTTL     time.Duration
	cache          *sessionCache
}

// NewTokenGenerator returns a generator of opaque session tokens.
func NewTokenGenerator() func() string {
	return func() string {
		return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	}
}

// NewAuthService constructs an AuthService.
func NewAuthService(deps Deps, cfg AuthConfig) *AuthService {
	svc := &AuthService{
		service:        newService("AuthService", deps, nil),
		hasher:         cfg.Hasher,
		tokenGenerator: cfg.TokenGenerator,
		sessionTTL:     cfg.SessionTTL,
	}
	if svc.hasher == nil {
		svc.hasher = NewPasswordHasher(DefaultArgon2idParams)
	}
	if svc.tokenGenerator == nil {
		svc.tokenGenerator = NewTokenGenerator()
	}
	if svc.sessionTTL <= 0 {
		svc.sessionTTL = 24 * time.Hour
	}
	svc.cache = newSessionCache(cfg.CacheTTL, 0, svc.now)
	return svc
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers a user with the default role.
func (s *AuthService) SignUp(ctx context.Context, params SignUpParams) (user domain.User, err error) {
	email := normalizeEmail(params.Email)
	_, done := s.begin(ctx, "SignUp", "email", email)
	defer func() { done(err, "user registered", "user_id", user.ID) }()

	v := &ValidationError{}
	if email == "" || !strings.Contains(email, "@") {
		v.add("email", "a valid email is required")
	}
	if len(params.Password) < minPasswordLength {
		v.add("password", "must be at least 8 characters")
	}
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		v.add("displayName", "is required")
	}
	if err = v.errOrNil(); err != nil {
		return
	}

	var hash string
	if hash, err = s.hasher.Hash(params.Password); err != nil {
		return
	}

	err = s.write(ctx, func(u *unit) error {
		existing := u.tx.Users().Find(func(candidate domain.User) bool {
			return normalizeEmail(candidate.Email) == email
		})
		if len(existing) > 0 {
			return ErrAlreadyExists
		}
		now := s.now()
		user = domain.User{
			ID:           s.idGenerator(),
			DisplayName:  displayName,
			Email:        email,
			Role:         domain.RoleUser,
			SearchStatus: domain.SearchOpen,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := u.tx.Users().Insert(user); err != nil {
			return err
		}
		return u.tx.Credentials().Insert(domain.Credential{UserID: user.ID, PasswordHash: hash, UpdatedAt: now})
	})
	return
}

// SignIn verifies credentials and issues a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (result SignInResult, err error) {
	email = normalizeEmail(email)
	_, done := s.begin(ctx, "SignIn", "email", email)
	defer func() {
		done(err, "user signed in", "user_id", result.User.ID, "session_id", result.Session.ID)
	}()

	if email == "" || password == "" {
		err = ErrInvalidCredentials
		return
	}

	var credential domain.Credential
	err = s.read(ctx, func(tx persistence.Tx) error {
		matches := tx.Users().Find(func(candidate domain.User) bool {
			return normalizeEmail(candidate.Email) == email
		})
		if len(matches) == 0 {
			return ErrInvalidCredentials
		}
		result.User = matches[0]
		var err error
		credential, err = tx.Credentials().Get(result.User.ID)
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	})
	if err != nil {
		return
	}
	if result.User.Role == domain.RoleBanned {
		err = ErrAccountDisabled
		return
	}
	if err = s.hasher.Verify(credential.PasswordHash, password); err != nil {
		err = ErrInvalidCredentials
		return
	}

	now := s.now()
	result.Session = domain.Session{
		ID:        s.idGenerator(),
		UserID:    result.User.ID,
		Token:     s.tokenGenerator(),
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	err = s.write(ctx, func(u *unit) error {
		return u.tx.Sessions().Insert(result.Session)
	})
	return
}

// SignOut revokes the session behind token. Unknown tokens are ignored.
func (s *AuthService) SignOut(ctx context.Context, token string) (err error) {
	_, done := s.begin(ctx, "SignOut")
	defer func() { done(err, "user signed out") }()

	s.cache.Forget(token)
	err = s.write(ctx, func(u *unit) error {
		session, ok := findSession(u.tx, token)
		if !ok || session.RevokedAt != nil {
			return nil
		}
		revoked := s.now()
		session.RevokedAt = &revoked
		return u.tx.Sessions().Update(session)
	})
	return
}

// Authenticate resolves token to the acting principal.
func (s *AuthService) Authenticate(ctx context.Context, token string) (principal Principal, err error) {
	if cached, ok := s.cache.Get(token); ok {
		return cached, nil
	}

	_, done := s.begin(ctx, "Authenticate")
	defer func() { done(err, "session resolved", "user_id", principal.UserID) }()

	var user domain.User
	var session domain.Session
	if user, session, err = s.resolve(ctx, token); err != nil {
		return
	}
	principal = Principal{UserID: user.ID, Role: user.Role}
	s.cache.Store(token, principal, session.ExpiresAt)
	return
}

// CurrentUser returns the profile of the user signed in with token.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (user domain.User, err error) {
	_, done := s.begin(ctx, "CurrentUser")
	defer func() { done(err, "current user resolved", "user_id", user.ID) }()

	user, _, err = s.resolve(ctx, token)
	return
}

func (s *AuthService) resolve(ctx context.Context, token string) (user domain.User, session domain.Session, err error) {
	if strings.TrimSpace(token) == "" {
		err = ErrUnauthenticated
		return
	}
	err = s.read(ctx, func(tx persistence.Tx) error {
		var ok bool
		session, ok = findSession(tx, token)
		if !ok || !session.Active(s.now()) {
			return ErrUnauthenticated
		}
		var err error
		user, err = tx.Users().Get(session.UserID)
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrUnauthenticated
		}
		return err
	})
	if err == nil && user.Role == domain.RoleBanned {
		err = ErrAccountDisabled
	}
	return
}

func findSession(tx persistence.Tx, token string) (domain.Session, bool) {
	if token == "" {
		return domain.Session{}, false
	}
	matches := tx.Sessions().Find(func(candidate domain.Session) bool {
		return candidate.Token == token
	})
	if len(matches) == 0 {
		return domain.Session{}, false
	}
	return matches[0], true
}

// GetUser returns a user profile.
func (s *AuthService) GetUser(ctx context.Context, userID string) (user domain.User, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		var err error
		user, err = get(tx.Users(), "user", userID)
		return err
	})
	return
}

// ListUsers returns every user in registration order.
func (s *AuthService) ListUsers(ctx context.Context) (users []domain.User, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		users = tx.Users().List()
		return nil
	})
	return
}

// UpdateProfile applies patch to userID's profile. Users edit themselves; admins edit anyone.
func (s *AuthService) UpdateProfile(ctx context.Context, principal Principal, userID string, patch ProfilePatch) (user domain.User, err error) {
	_, done := s.begin(ctx, "UpdateProfile", "actor_id", principal.UserID, "user_id", userID)
	defer func() { done(err, "profile updated") }()

	if err = requireActive(principal); err != nil {
		return
	}
	if principal.UserID != userID && !principal.IsAdmin() {
		err = denied("only the owner or an admin can edit a profile")
		return
	}
	if patch.DisplayName != nil && strings.TrimSpace(*patch.DisplayName) == "" {
		err = invalidField("displayName", "cannot be empty")
		return
	}
	if patch.SearchStatus != nil {
		switch *patch.SearchStatus {
		case domain.SearchLooking, domain.SearchOpen, domain.SearchNotLooking:
		default:
			err = invalidField("searchStatus", "unknown value")
			return
		}
	}

	err = s.write(ctx, func(u *unit) error {
		var err error
		if user, err = get(u.tx.Users(), "user", userID); err != nil {
			return err
		}
		if patch.DisplayName != nil {
			user.DisplayName = strings.TrimSpace(*patch.DisplayName)
		}
		if patch.Bio != nil {
			user.Bio = *patch.Bio
		}
		if patch.City != nil {
			user.City = *patch.City
		}
		if patch.AvatarURL != nil {
			user.AvatarURL = *patch.AvatarURL
		}
		if patch.Instruments != nil {
			user.Instruments = *patch.Instruments
		}
		if patch.Genres != nil {
			user.Genres = *patch.Genres
		}
		if patch.Contact != nil {
			user.Contact = *patch.Contact
		}
		if patch.SearchStatus != nil {
			user.SearchStatus = *patch.SearchStatus
		}
		user.UpdatedAt = s.now()
		return u.tx.Users().Update(user)
	})
	return
}

// PurgeExpiredSessions deletes sessions that expired or were revoked before now.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (purged int, err error) {
	_, done := s.begin(ctx, "PurgeExpiredSessions")
	defer func() { done(err, "sessions purged", "count", purged) }()

	now := s.now()
	err = s.write(ctx, func(u *unit) error {
		stale := u.tx.Sessions().Find(func(session domain.Session) bool {
			return !session.Active(now)
		})
		for _, session := range stale {
			if err := u.tx.Sessions().Delete(session.ID); err != nil {
				return err
			}
			s.cache.Forget(session.Token)
		}
		purged = len(stale)
		return nil
	})
	return
}

// forgetUser drops cached principals after a role change or account removal.
func (s *AuthService) forgetUser(userID string) {
	if s != nil {
		s.cache.ForgetUser(userID)
	}
}
