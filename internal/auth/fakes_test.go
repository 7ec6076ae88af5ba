package auth

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/mediaprofile/userauth/internal/models"
)

// memStore is an in-memory UserStore with the same uniqueness rules as the
// real stores.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	nextID int

	findErr   error
	createErr error
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*models.User{}}
}

func (m *memStore) Create(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return nil, models.ErrUserExists
		}
	}
	m.nextID++
	c := *u
	c.ID = strconv.Itoa(m.nextID)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.users[c.ID] = &c
	out := c
	return &out, nil
}

func (m *memStore) FindByUsernameOrEmail(_ context.Context, username, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			c := *u
			return &c, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (m *memStore) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (m *memStore) UpdateRefreshToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.RefreshToken = token
	u.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) get(id string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// fakeMedia records uploads and fails for the folders listed in failFolders.
type fakeMedia struct {
	mu          sync.Mutex
	uploads     []string
	failFolders map[string]bool
}

func (f *fakeMedia) Upload(_ context.Context, folder string, file *MediaFile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFolders[folder] {
		return "", errors.New("media host unavailable")
	}
	if _, err := io.Copy(io.Discard, file.Body); err != nil {
		return "", err
	}
	f.uploads = append(f.uploads, folder+"/"+file.Name)
	return "https://media.example/" + folder + "/" + file.Name, nil
}
