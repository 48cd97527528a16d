package enroll

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ResetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"is_email_verified" = TRUE,
	"password_hash" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var ChangeUserEmailSQL = `UPDATE "users" AS "usr"
SET
	"email" = ?,
	"is_email_verified" = TRUE
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// Users is the account storage surface the workflows depend on. The account
// records themselves are owned by the application; this layer only performs
// the queries and mutations the lifecycle flows need.
type Users interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id string) (*User, error)

	// GetByLogin resolves a login string with one disjunctive query over the
	// given columns. Exactly one match is returned; more than one match is an
	// integrity violation, never an arbitrary pick.
	GetByLogin(ctx context.Context, login string, columns []string) (*User, error)
	GetByLoginTx(ctx context.Context, tx bun.IDB, login string, columns []string) (*User, error)

	// FindAllByEmail is case-insensitive and deliberately non-unique:
	// several accounts may share one address.
	FindAllByEmail(ctx context.Context, email string) ([]*User, error)
	FindAllByEmailTx(ctx context.Context, tx bun.IDB, email string) ([]*User, error)

	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)

	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)

	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	ChangeEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByID(ctx context.Context, id string) (*User, error) {
	return a.Repository.GetByID(ctx, id)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id string) (*User, error) {
	return a.Repository.GetByIDTx(ctx, tx, id)
}

func (a *users) GetByLogin(ctx context.Context, login string, columns []string) (*User, error) {
	return a.GetByLoginTx(ctx, a.db, login, columns)
}

func (a *users) GetByLoginTx(ctx context.Context, tx bun.IDB, login string, columns []string) (*User, error) {
	if len(columns) == 0 {
		columns = []string{"username"}
	}

	var records []*User

	// single query, limit 2: the second row only exists to detect a broken
	// cross-attribute uniqueness invariant
	err := tx.NewSelect().
		Model(&records).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, column := range columns {
				q = q.WhereOr(fmt.Sprintf("?TableAlias.%s = ?", column), login)
			}
			return q
		}).
		Limit(2).
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "login lookup failed")
	}

	if len(records) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"login": login,
			})
	}

	if len(records) > 1 {
		return nil, NewAmbiguousLoginError(login)
	}

	return records[0], nil
}

func (a *users) FindAllByEmail(ctx context.Context, email string) ([]*User, error) {
	return a.FindAllByEmailTx(ctx, a.db, email)
}

func (a *users) FindAllByEmailTx(ctx context.Context, tx bun.IDB, email string) ([]*User, error) {
	var records []*User

	err := tx.NewSelect().
		Model(&records).
		Where("LOWER(?TableAlias.email) = LOWER(?)", email).
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "email lookup failed")
	}

	return records, nil
}

func (a *users) UsernameTaken(ctx context.Context, username string) (bool, error) {
	return a.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.username = ?", username).
		Exists(ctx)
}

func (a *users) EmailTaken(ctx context.Context, email string) (bool, error) {
	return a.db.NewSelect().
		Model((*User)(nil)).
		Where("LOWER(?TableAlias.email) = LOWER(?)", email).
		Exists(ctx)
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	update := &statusUpdate{
		record:  &User{ID: id, Status: status},
		columns: []string{"status"},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(update)
		}
	}

	// the UPDATE must touch only the lifecycle columns; a sparse record
	// without the restriction would blank the rest of the row
	return a.Repository.UpdateTx(ctx, tx, update.record,
		repository.UpdateByID(id.String()),
		repository.UpdateColumns(update.columns...),
	)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetUserPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) ChangeEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, ChangeUserEmailSQL, email, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

// statusUpdate collects the record mutations of a status transition along
// with the columns they touch, so the UPDATE can be restricted to them.
type statusUpdate struct {
	record  *User
	columns []string
}

// StatusUpdateOption allows callers to mutate the user record before persisting status changes.
type StatusUpdateOption func(*statusUpdate)

// WithSuspendedAt sets the SuspendedAt timestamp during a status transition.
// A nil timestamp clears the column.
func WithSuspendedAt(at *time.Time) StatusUpdateOption {
	return func(u *statusUpdate) {
		u.record.SuspendedAt = at
		u.columns = append(u.columns, "suspended_at")
	}
}

// WithEmailVerified marks the account email as verified during a status transition.
func WithEmailVerified() StatusUpdateOption {
	return func(u *statusUpdate) {
		u.record.EmailVerified = true
		u.columns = append(u.columns, "is_email_verified")
	}
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
