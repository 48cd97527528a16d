package enroll_test

import (
	"context"
	"database/sql"
	"time"

	"github.com/farin/go-enroll"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockUsers implements enroll.Users
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetByID(ctx context.Context, id string) (*enroll.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*enroll.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByIDTx(ctx context.Context, tx bun.IDB, id string) (*enroll.User, error) {
	args := m.Called(ctx, tx, id)
	user, _ := args.Get(0).(*enroll.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByLogin(ctx context.Context, login string, columns []string) (*enroll.User, error) {
	args := m.Called(ctx, login, columns)
	user, _ := args.Get(0).(*enroll.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByLoginTx(ctx context.Context, tx bun.IDB, login string, columns []string) (*enroll.User, error) {
	args := m.Called(ctx, tx, login, columns)
	user, _ := args.Get(0).(*enroll.User)
	return user, args.Error(1)
}

func (m *MockUsers) FindAllByEmail(ctx context.Context, email string) ([]*enroll.User, error) {
	args := m.Called(ctx, email)
	users, _ := args.Get(0).([]*enroll.User)
	return users, args.Error(1)
}

func (m *MockUsers) FindAllByEmailTx(ctx context.Context, tx bun.IDB, email string) ([]*enroll.User, error) {
	args := m.Called(ctx, tx, email)
	users, _ := args.Get(0).([]*enroll.User)
	return users, args.Error(1)
}

func (m *MockUsers) UsernameTaken(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) EmailTaken(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) Create(ctx context.Context, record *enroll.User) (*enroll.User, error) {
	args := m.Called(ctx, record)
	user, _ := args.Get(0).(*enroll.User)
	return user, args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *enroll.User) (*enroll.User, error) {
	args := m.Called(ctx, tx, record)
	user, _ := args.Get(0).(*enroll.User)
	return user, args.Error(1)
}

func (m *MockUsers) UpdateStatus(ctx context.Context, id uuid.UUID, status enroll.UserStatus, opts ...enroll.StatusUpdateOption) (*enroll.User, error) {
	args := m.Called(ctx, id, status, opts)
	user, _ := args.Get(0).(*enroll.User)
	return user, args.Error(1)
}

func (m *MockUsers) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status enroll.UserStatus, opts ...enroll.StatusUpdateOption) (*enroll.User, error) {
	args := m.Called(ctx, tx, id, status, opts)
	user, _ := args.Get(0).(*enroll.User)
	return user, args.Error(1)
}

func (m *MockUsers) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, tx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUsers) ChangeEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*enroll.User, error) {
	args := m.Called(ctx, tx, id, email)
	user, _ := args.Get(0).(*enroll.User)
	return user, args.Error(1)
}

// MockVerificationTokens implements enroll.VerificationTokens
type MockVerificationTokens struct {
	mock.Mock
}

func (m *MockVerificationTokens) GetByValue(ctx context.Context, value string) (*enroll.VerificationToken, error) {
	args := m.Called(ctx, value)
	token, _ := args.Get(0).(*enroll.VerificationToken)
	return token, args.Error(1)
}

func (m *MockVerificationTokens) GetByValueTx(ctx context.Context, tx bun.IDB, value string) (*enroll.VerificationToken, error) {
	args := m.Called(ctx, tx, value)
	token, _ := args.Get(0).(*enroll.VerificationToken)
	return token, args.Error(1)
}

func (m *MockVerificationTokens) Create(ctx context.Context, record *enroll.VerificationToken) (*enroll.VerificationToken, error) {
	args := m.Called(ctx, record)
	token, _ := args.Get(0).(*enroll.VerificationToken)
	return token, args.Error(1)
}

func (m *MockVerificationTokens) CreateTx(ctx context.Context, tx bun.IDB, record *enroll.VerificationToken) (*enroll.VerificationToken, error) {
	args := m.Called(ctx, tx, record)
	token, _ := args.Get(0).(*enroll.VerificationToken)
	return token, args.Error(1)
}

func (m *MockVerificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (*enroll.VerificationToken, error) {
	args := m.Called(ctx, tx, id, at)
	token, _ := args.Get(0).(*enroll.VerificationToken)
	return token, args.Error(1)
}

// MockActivitySink implements enroll.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event enroll.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockNotifier implements enroll.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n enroll.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockRepositoryManager implements enroll.RepositoryManager. When RunInTx is
// configured to return nil the transactional closure runs with a zero bun.Tx,
// so repository expectations inside it still fire.
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	if err := args.Error(0); err != nil {
		return err
	}

	var tx bun.Tx
	return f(ctx, tx)
}

func (m *MockRepositoryManager) Users() enroll.Users {
	args := m.Called()
	users, _ := args.Get(0).(enroll.Users)
	return users
}

func (m *MockRepositoryManager) VerificationTokens() enroll.VerificationTokens {
	args := m.Called()
	tokens, _ := args.Get(0).(enroll.VerificationTokens)
	return tokens
}
