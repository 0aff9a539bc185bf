package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"soundstorm/internal/apperrors"
	"soundstorm/pkg/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Registry is the in-memory account store. Accounts live as long as the process.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*models.User
	cost  int
	now   func() time.Time
}

// NewRegistry creates an empty registry hashing passwords at the given bcrypt cost.
func NewRegistry(cost int) *Registry {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Registry{
		users: make(map[string]*models.User),
		cost:  cost,
		now:   time.Now,
	}
}

// Exists reports whether username is taken. Usernames are case-sensitive.
func (r *Registry) Exists(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[username]
	return ok
}

// Add stores a new account. The password is hashed before it is kept.
func (r *Registry) Add(username, email, password string) (models.User, error) {
	hashedPassword, err := hashPassword(password, r.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// re-checked under the write lock; two registrations may race past Exists
	if _, exists := r.users[username]; exists {
		return models.User{}, apperrors.Invalid("username", ErrUsernameTaken.Error())
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Password:     hashedPassword,
		RegisteredAt: r.now(),
	}
	r.users[username] = user

	return user.Public(), nil
}

// Authenticate returns the account whose username and password both match.
func (r *Registry) Authenticate(username, password string) (models.User, bool) {
	r.mu.RLock()
	user, exists := r.users[username]
	r.mu.RUnlock()
	if !exists {
		return models.User{}, false
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), passwordKey(password)); err != nil {
		return models.User{}, false
	}
	return user.Public(), true
}

// Count returns the number of registered accounts.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// passwordKey digests password to a fixed 44-byte string so that bcrypt's
// 72-byte input limit never applies.
func passwordKey(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// hashPassword hashes a plaintext password using bcrypt
func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(passwordKey(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
