package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/commonroom/commonroom/internal/models"
	"github.com/commonroom/commonroom/internal/repositories"
	"github.com/commonroom/commonroom/internal/utils"
	logger "github.com/commonroom/commonroom/middleware/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or secret")
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidUsername    = errors.New("invalid username format")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidSecret      = errors.New("secret too short")
)

// Listener receives the new active identity after every mutation, nil when
// logged out.
type Listener func(identity *models.Identity)

// Manager owns the identity registry and the active-identity reference.
// Every successful mutation persists the active snapshot to the durable
// slot and notifies subscribers.
type Manager struct {
	users repositories.UserRepository
	slot  SlotStore
	log   *logger.Logger

	// Cosmetic login/signup delay carried over from the original client,
	// zero by default.
	latency time.Duration

	mu          sync.Mutex
	active      *models.Identity
	subscribers map[int]Listener
	nextSubID   int
}

type Option func(*Manager)

// WithSimulatedLatency makes Login and SignUp pause before resolving.
func WithSimulatedLatency(d time.Duration) Option {
	return func(m *Manager) {
		m.latency = d
	}
}

func NewManager(users repositories.UserRepository, slot SlotStore, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		users:       users,
		slot:        slot,
		log:         log,
		subscribers: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers a listener for identity changes and returns its
// unsubscribe function.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// Active returns a copy of the active identity, nil when logged out.
func (m *Manager) Active() *models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	snapshot := *m.active
	return &snapshot
}

// Authenticated reports whether an identity is active.
func (m *Manager) Authenticated() bool {
	return m.Active() != nil
}

// Login scans the registry for the email, checks the secret and makes the
// matching identity active. The returned snapshot never carries the secret.
// A failed login leaves the active identity unchanged.
func (m *Manager) Login(ctx context.Context, email, secret string) (*models.Identity, error) {
	m.simulateLatency()

	user, err := m.users.GetByEmail(email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckSecret(user.SecretHash, secret) {
		return nil, ErrInvalidCredentials
	}

	identity := user.Identity()
	m.setActive(ctx, identity)

	m.log.WithContext(ctx).Info("login",
		zap.String("user_id", identity.ID),
		zap.String("username", identity.Username))
	return identity, nil
}

// SignUp appends a new identity to the registry and makes it active.
// The registry is left untouched when the email is already registered
// (case-sensitive match) or the input is malformed.
func (m *Manager) SignUp(ctx context.Context, username, email, secret string) (*models.Identity, error) {
	m.simulateLatency()

	if !utils.ValidateUsername(username) {
		return nil, ErrInvalidUsername
	}
	if !utils.ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !utils.ValidateSecret(secret) {
		return nil, ErrInvalidSecret
	}

	if _, err := m.users.GetByEmail(email); err == nil {
		return nil, ErrEmailInUse
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	hash, err := utils.HashSecret(secret)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:         uuid.NewString(),
		Username:   username,
		Email:      email,
		SecretHash: hash,
		AvatarURL:  utils.UserAvatarURL(username),
		CreatedAt:  time.Now(),
	}
	if err := m.users.Create(user); err != nil {
		return nil, err
	}

	identity := user.Identity()
	m.setActive(ctx, identity)

	m.log.WithContext(ctx).Info("signup",
		zap.String("user_id", identity.ID),
		zap.String("username", identity.Username))
	return identity, nil
}

// Logout clears the active identity and the durable slot. It has no
// failure mode; slot errors are logged and swallowed.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.active = nil
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	if err := m.slot.Clear(ctx); err != nil {
		m.log.WithContext(ctx).Warn("clear session slot", zap.Error(err))
	}

	for _, fn := range listeners {
		fn(nil)
	}
}

// Restore reads the durable slot at startup. A well-formed snapshot becomes
// the active identity without registry re-validation; an empty or garbled
// slot leaves the manager logged out.
func (m *Manager) Restore(ctx context.Context) error {
	identity, err := m.slot.Load(ctx)
	if err != nil {
		return err
	}
	if identity == nil {
		return nil
	}

	m.mu.Lock()
	m.active = identity
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	snapshot := *identity
	for _, fn := range listeners {
		fn(&snapshot)
	}

	m.log.WithContext(ctx).Info("session restored",
		zap.String("user_id", identity.ID))
	return nil
}

func (m *Manager) setActive(ctx context.Context, identity *models.Identity) {
	m.mu.Lock()
	snapshot := *identity
	m.active = &snapshot
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	if err := m.slot.Save(ctx, identity); err != nil {
		m.log.WithContext(ctx).Warn("save session slot", zap.Error(err))
	}

	for _, fn := range listeners {
		notified := *identity
		fn(&notified)
	}
}

// snapshotListeners must be called with the lock held.
func (m *Manager) snapshotListeners() []Listener {
	listeners := make([]Listener, 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		listeners = append(listeners, fn)
	}
	return listeners
}

func (m *Manager) simulateLatency() {
	if m.latency > 0 {
		time.Sleep(m.latency)
	}
}
