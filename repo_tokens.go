package enroll

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConsumeVerificationTokenSQL flips consumed_at exactly once. The
// consumed_at IS NULL guard makes concurrent redemptions of the same token
// race safely: one UPDATE wins, the other matches zero rows.
var ConsumeVerificationTokenSQL = `UPDATE "verification_tokens" AS "vtk"
SET
	"consumed_at" = ?
WHERE
	"vtk"."id" = ?
AND
	"vtk"."consumed_at" IS NULL
RETURNING *;`

// VerificationTokens stores single-use verification tokens. Tokens are never
// updated beyond consumption; expired and consumed rows are left for an
// external reaper.
type VerificationTokens interface {
	GetByValue(ctx context.Context, value string) (*VerificationToken, error)
	GetByValueTx(ctx context.Context, tx bun.IDB, value string) (*VerificationToken, error)

	Create(ctx context.Context, record *VerificationToken) (*VerificationToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *VerificationToken) (*VerificationToken, error)

	// ConsumeTx marks the token consumed iff it was not consumed before.
	// Returns a token-already-used error when the compare-and-set loses.
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (*VerificationToken, error)
}

type verificationTokens struct {
	repository.Repository[*VerificationToken]
	db *bun.DB
}

var _ VerificationTokens = (*verificationTokens)(nil)

func NewVerificationTokensRepository(db *bun.DB) VerificationTokens {
	handlers := repository.ModelHandlers[*VerificationToken]{
		NewRecord: func() *VerificationToken {
			return &VerificationToken{}
		},
		GetID: func(record *VerificationToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *VerificationToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "value"
		},
	}

	return &verificationTokens{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

func (r *verificationTokens) GetByValue(ctx context.Context, value string) (*VerificationToken, error) {
	return r.GetByValueTx(ctx, r.db, value)
}

func (r *verificationTokens) GetByValueTx(ctx context.Context, tx bun.IDB, value string) (*VerificationToken, error) {
	record := &VerificationToken{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.value = ?", value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"token": maskTokenValue(value),
				})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "token lookup failed")
	}

	return record, nil
}

func (r *verificationTokens) Create(ctx context.Context, record *VerificationToken) (*VerificationToken, error) {
	return r.CreateTx(ctx, r.db, record)
}

func (r *verificationTokens) CreateTx(ctx context.Context, tx bun.IDB, record *VerificationToken) (*VerificationToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *verificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (*VerificationToken, error) {
	res, err := r.Repository.RawTx(ctx, tx, ConsumeVerificationTokenSQL, at, id.String())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification token")
	}

	if len(res) == 0 {
		return nil, newTokenConsumedError()
	}

	return res[0], nil
}
