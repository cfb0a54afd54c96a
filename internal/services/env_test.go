package services

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tahcohcat/reconectar/internal/database"
	"github.com/tahcohcat/reconectar/internal/localstore"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

func TestMain(m *testing.M) {
	models.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

var fixedNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (r *recorder) Publish(e realtime.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) has(table string, typ realtime.EventType, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Table == table && e.Type == typ && e.UserID == userID {
			return true
		}
	}
	return false
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return "https://cdn.test/" + key, nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) KeyOf(url string) (string, bool) {
	return strings.CutPrefix(url, "https://cdn.test/")
}

type env struct {
	db         *database.DB
	store      localstore.Store
	events     *recorder
	objects    *memObjects
	users      *UserService
	roles      *RoleService
	profiles   *ProfileService
	challenges *ChallengeService
	community  *CommunityService
	chat       *ChatService
	admin      *AdminService
	wellness   *WellnessService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := database.NewTestDB(t)
	store := localstore.NewSQLStore(db)
	events := &recorder{}
	objects := &memObjects{objects: map[string][]byte{}}

	e := &env{db: db, store: store, events: events, objects: objects}
	e.users = NewUserService(db, events)
	e.roles = NewRoleService(db, events)
	e.profiles = NewProfileService(db, e.roles, events, objects, 1024)
	challenges, err := NewChallengeService(db, store, e.profiles, events, 16)
	require.NoError(t, err)
	challenges.now = func() time.Time { return fixedNow }
	e.challenges = challenges
	e.community = NewCommunityService(db, e.roles, events)
	e.chat = NewChatService(db, e.roles, events, ChatLimit{PerMinute: 60, Burst: 10})
	e.admin = NewAdminService(db, e.roles, e.profiles, events)
	e.wellness = NewWellnessService(store, events)
	e.wellness.now = func() time.Time { return fixedNow }
	return e
}

// register creates an account and returns its id.
func (e *env) register(t *testing.T, name, email string) string {
	t.Helper()
	user, err := e.users.CreateUser(context.Background(), &models.CreateUserRequest{
		Name:     name,
		Email:    email,
		Password: "secret123",
	})
	require.NoError(t, err)
	return user.ID
}

func (e *env) promote(t *testing.T, userID string, role models.Role) {
	t.Helper()
	_, err := e.db.Exec(`INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`, userID, role)
	require.NoError(t, err)
}
