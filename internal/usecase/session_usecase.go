package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/internal/infrastructure/firebase"
	"schadenschat/internal/infrastructure/localstore"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/logger"
	"schadenschat/pkg/utils"
)

// AuthenticatedHook runs after an identity is established.
type AuthenticatedHook func(ctx context.Context, identity *entity.Identity)

type workshopProfile struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// SessionUseCase is the identity gate of one app instance.
// anonymous -> pending_verification -> authenticated -> anonymous.
type SessionUseCase struct {
	store    *localstore.Store
	keys     localstore.Keys
	verifier TokenVerifier
	pending  repository.PendingSync
	validate *validator.Validate
	now      func() time.Time
	log      logger.Component

	mu      sync.RWMutex
	session entity.Session
	hooks   []AuthenticatedHook
}

// NewSessionUseCase starts anonymous. verifier may be nil when no identity
// provider is configured; verification then always fails.
func NewSessionUseCase(store *localstore.Store, keys localstore.Keys, verifier TokenVerifier, pending repository.PendingSync) *SessionUseCase {
	uc := &SessionUseCase{
		store:    store,
		keys:     keys,
		verifier: verifier,
		pending:  pending,
		validate: utils.NewValidator(),
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.For("session"),
	}
	uc.session = entity.Session{State: entity.SessionAnonymous, Since: uc.now()}
	return uc
}

func (uc *SessionUseCase) OnAuthenticated(hook AuthenticatedHook) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.hooks = append(uc.hooks, hook)
}

// Restore picks up the identity persisted by a previous run.
func (uc *SessionUseCase) Restore(ctx context.Context) error {
	var identity entity.Identity
	found, err := uc.store.Get(uc.keys.User(), &identity)
	if err != nil {
		return err
	}
	if !found || identity.ID == "" {
		return nil
	}

	uc.mu.Lock()
	uc.session = entity.Session{State: entity.SessionAuthenticated, Identity: &identity, Since: uc.now()}
	uc.mu.Unlock()

	uc.log.Info("Restored %s identity %s", identity.Role, identity.ID)
	return nil
}

func (uc *SessionUseCase) Session() entity.Session {
	uc.mu.RLock()
	defer uc.mu.RUnlock()

	s := uc.session
	if s.Identity != nil {
		identity := *s.Identity
		s.Identity = &identity
	}
	return s
}

func (uc *SessionUseCase) GetCurrentIdentity() *entity.Identity {
	return uc.Session().Identity
}

func (uc *SessionUseCase) RequireIdentity() (*entity.Identity, error) {
	identity := uc.GetCurrentIdentity()
	if identity == nil {
		return nil, errors.Unauthenticated("Please sign in first")
	}
	return identity, nil
}

// BeginPhoneVerification records that a one-time code was sent to phone.
// Code delivery and entry happen outside the app core.
func (uc *SessionUseCase) BeginPhoneVerification(phone string) (entity.Session, error) {
	if err := uc.validate.Var(phone, "required,e164"); err != nil {
		return entity.Session{}, errors.Validation("phone must be a phone number in international format")
	}

	uc.mu.Lock()
	if uc.session.State == entity.SessionAuthenticated {
		uc.mu.Unlock()
		return entity.Session{}, errors.Conflict("Already signed in")
	}
	uc.session = entity.Session{
		State:       entity.SessionPendingVerification,
		PendingFor:  phone,
		PendingRole: entity.RoleCustomer,
		Since:       uc.now(),
	}
	uc.mu.Unlock()

	return uc.Session(), nil
}

func (uc *SessionUseCase) CancelVerification() entity.Session {
	uc.mu.Lock()
	if uc.session.State == entity.SessionPendingVerification {
		uc.session = entity.Session{State: entity.SessionAnonymous, Since: uc.now()}
	}
	uc.mu.Unlock()
	return uc.Session()
}

// CompleteVerification accepts the ID token issued after a successful code
// entry. A failed verification leaves the session pending.
func (uc *SessionUseCase) CompleteVerification(ctx context.Context, idToken string) (*entity.Identity, error) {
	current := uc.Session()
	if current.State != entity.SessionPendingVerification {
		return nil, errors.Conflict("No verification in progress")
	}

	verified, err := uc.verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if verified.Phone != "" && verified.Phone != current.PendingFor {
		return nil, errors.Unauthenticated("Token was issued for a different phone number")
	}

	identity := &entity.Identity{
		ID:    verified.UID,
		Role:  current.PendingRole,
		Phone: current.PendingFor,
	}
	return identity, uc.establish(ctx, identity)
}

// SignIn establishes a session straight from an ID token, as in the
// workshop email/password flow. A role claim on the token wins over role.
func (uc *SessionUseCase) SignIn(ctx context.Context, idToken string, role entity.Role) (*entity.Identity, error) {
	if uc.Session().State == entity.SessionAuthenticated {
		return nil, errors.Conflict("Already signed in")
	}

	verified, err := uc.verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if claimed := entity.Role(verified.Role); claimed.Valid() {
		role = claimed
	}
	if !role.Valid() {
		return nil, errors.Validation("type must be customer or workshop")
	}

	identity := &entity.Identity{
		ID:    verified.UID,
		Role:  role,
		Phone: verified.Phone,
		Email: verified.Email,
	}
	return identity, uc.establish(ctx, identity)
}

// SignOut clears the identity, the workshop profile and all pending-sync state.
func (uc *SessionUseCase) SignOut(ctx context.Context) error {
	if err := uc.store.Delete(uc.keys.User(), uc.keys.Workshop()); err != nil {
		return err
	}
	if err := uc.pending.Clear(ctx); err != nil {
		return err
	}

	uc.mu.Lock()
	uc.session = entity.Session{State: entity.SessionAnonymous, Since: uc.now()}
	uc.mu.Unlock()

	uc.log.Info("Signed out")
	return nil
}

func (uc *SessionUseCase) verify(ctx context.Context, idToken string) (*firebase.VerifiedToken, error) {
	if idToken == "" {
		return nil, errors.Validation("idToken is required")
	}
	if uc.verifier == nil {
		return nil, errors.Unauthenticated("Identity verification is not configured")
	}

	token, err := uc.verifier.VerifyToken(ctx, idToken)
	if err != nil {
		uc.log.Warn("Token verification failed: %v", err)
		return nil, errors.Unauthenticated("Invalid or expired token")
	}
	return token, nil
}

func (uc *SessionUseCase) establish(ctx context.Context, identity *entity.Identity) error {
	if err := uc.store.Put(uc.keys.User(), identity); err != nil {
		return err
	}
	if identity.Role == entity.RoleWorkshop {
		if err := uc.store.Put(uc.keys.Workshop(), workshopProfile{ID: identity.ID, Email: identity.Email}); err != nil {
			return err
		}
	}

	uc.mu.Lock()
	stored := *identity
	uc.session = entity.Session{State: entity.SessionAuthenticated, Identity: &stored, Since: uc.now()}
	hooks := append([]AuthenticatedHook(nil), uc.hooks...)
	uc.mu.Unlock()

	uc.log.Info("Authenticated %s %s", identity.Role, identity.ID)
	for _, hook := range hooks {
		hook(ctx, identity)
	}
	return nil
}
