package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/templui/refinekit/internal/config"
	"github.com/templui/refinekit/internal/db/dbtest"
	"github.com/templui/refinekit/internal/model"
	"github.com/templui/refinekit/internal/repository"
)

type sentMessage struct {
	To  string
	Msg Message
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (m *recordingMailer) Send(_ context.Context, destination string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{To: destination, Msg: msg})
	return nil
}

func (m *recordingMailer) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type testEnv struct {
	db            *sqlx.DB
	users         repository.UserRepository
	tokens        repository.ResetTokenRepository
	events        repository.BillingEventRepository
	subscriptions *SubscriptionService
	auth          *AuthService
	userService   *UserService
	mailer        *recordingMailer
	email         *EmailService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn := dbtest.New(t)

	users := repository.NewUserRepository(conn)
	subscriptions := NewSubscriptionService(repository.NewSubscriptionRepository(conn))
	mailer := &recordingMailer{}

	return &testEnv{
		db:            conn,
		users:         users,
		tokens:        repository.NewResetTokenRepository(conn),
		events:        repository.NewBillingEventRepository(conn),
		subscriptions: subscriptions,
		auth:          NewAuthService(users, subscriptions, "test-secret", time.Hour, false),
		userService:   NewUserService(users, subscriptions),
		mailer:        mailer,
		email:         NewEmailService(mailer, "Refinekit"),
	}
}

func (e *testEnv) resetService(expose bool) *PasswordResetService {
	return NewPasswordResetService(e.tokens, e.users, e.email, "http://app.test", time.Hour,
		config.Services{ExposeResetTokens: expose})
}

func (e *testEnv) signup(t *testing.T, email, password, name string) *model.User {
	t.Helper()
	user, err := e.auth.Signup(context.Background(), email, password, name)
	require.NoError(t, err)
	return user
}
