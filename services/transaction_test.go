package services

import (
	"context"
	"errors"
	"testing"

	"github.com/augustinmaps01/risk-profiling/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTransactionManager is a mock implementation of TransactionManager
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(repositories.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

// MockTransaction is a mock implementation of Transaction
type MockTransaction struct {
	mock.Mock
	committed  bool
	rolledback bool
}

func (m *MockTransaction) Commit() error {
	args := m.Called()
	m.committed = true
	return args.Error(0)
}

func (m *MockTransaction) Rollback() error {
	args := m.Called()
	m.rolledback = true
	return args.Error(0)
}

func (m *MockTransaction) Context() context.Context {
	args := m.Called()
	if ctx := args.Get(0); ctx != nil {
		return ctx.(context.Context)
	}
	return nil
}

type txMarker struct{}

// beginMock wires a manager whose transaction carries a marked context
func beginMock(ctx context.Context) (*MockTransactionManager, *MockTransaction, context.Context) {
	txMgr := new(MockTransactionManager)
	tx := new(MockTransaction)
	txCtx := context.WithValue(ctx, txMarker{}, "tx")

	txMgr.On("Begin", ctx).Return(tx, nil)
	tx.On("Context").Return(txCtx)
	return txMgr, tx, txCtx
}

func TestWithTransaction(t *testing.T) {
	operationErr := errors.New("operation failed")

	tests := []struct {
		name         string
		fnErr        error
		commitErr    error
		rollbackErr  error
		wantErr      string
		wantCommit   bool
		wantRollback bool
	}{
		{name: "commits on success", wantCommit: true},
		{name: "rolls back on error", fnErr: operationErr, wantErr: "operation failed", wantRollback: true},
		{name: "commit failure", commitErr: errors.New("commit failed"), wantErr: "failed to commit transaction", wantCommit: true},
		{name: "rollback failure", fnErr: operationErr, rollbackErr: errors.New("rollback failed"), wantErr: "rollback error", wantRollback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			txMgr, tx, txCtx := beginMock(ctx)
			if tt.wantCommit {
				tx.On("Commit").Return(tt.commitErr)
			}
			if tt.wantRollback {
				tx.On("Rollback").Return(tt.rollbackErr)
			}

			var seen context.Context
			err := WithTransaction(ctx, txMgr, func(ctx context.Context, _ repositories.Transaction) error {
				seen = ctx
				return tt.fnErr
			})

			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			assert.Equal(t, txCtx, seen)
			assert.Equal(t, tt.wantCommit, tx.committed)
			assert.Equal(t, tt.wantRollback, tx.rolledback)
			txMgr.AssertExpectations(t)
			tx.AssertExpectations(t)
		})
	}
}

func TestWithTransaction_BeginError(t *testing.T) {
	ctx := context.Background()
	txMgr := new(MockTransactionManager)
	txMgr.On("Begin", ctx).Return(nil, errors.New("pool exhausted"))

	called := false
	err := WithTransaction(ctx, txMgr, func(context.Context, repositories.Transaction) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	assert.False(t, called)
}

func TestWithTransaction_FallsBackToCallerContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), txMarker{}, "caller")
	txMgr := new(MockTransactionManager)
	tx := new(MockTransaction)
	txMgr.On("Begin", ctx).Return(tx, nil)
	tx.On("Context").Return(nil)
	tx.On("Commit").Return(nil)

	err := WithTransaction(ctx, txMgr, func(ctx context.Context, _ repositories.Transaction) error {
		assert.Equal(t, "caller", ctx.Value(txMarker{}))
		return nil
	})
	assert.NoError(t, err)
}

func TestWithTransaction_PanicRollsBack(t *testing.T) {
	ctx := context.Background()
	txMgr, tx, _ := beginMock(ctx)
	tx.On("Rollback").Return(nil)

	assert.PanicsWithValue(t, "boom", func() {
		_ = WithTransaction(ctx, txMgr, func(context.Context, repositories.Transaction) error {
			panic("boom")
		})
	})
	assert.True(t, tx.rolledback)
	assert.False(t, tx.committed)
}

func TestWithTransactionResult(t *testing.T) {
	t.Run("returns value on commit", func(t *testing.T) {
		ctx := context.Background()
		txMgr, tx, _ := beginMock(ctx)
		tx.On("Commit").Return(nil)

		result, err := WithTransactionResult(ctx, txMgr, func(context.Context, repositories.Transaction) (string, error) {
			return "loaded", nil
		})

		assert.NoError(t, err)
		assert.Equal(t, "loaded", result)
		assert.True(t, tx.committed)
	})

	t.Run("returns value when commit fails", func(t *testing.T) {
		ctx := context.Background()
		txMgr, tx, _ := beginMock(ctx)
		tx.On("Commit").Return(errors.New("commit failed"))

		result, err := WithTransactionResult(ctx, txMgr, func(context.Context, repositories.Transaction) (int, error) {
			return 42, nil
		})

		require.Error(t, err)
		assert.Equal(t, 42, result)
	})

	t.Run("zero value on begin error", func(t *testing.T) {
		ctx := context.Background()
		txMgr := new(MockTransactionManager)
		txMgr.On("Begin", ctx).Return(nil, errors.New("down"))

		result, err := WithTransactionResult(ctx, txMgr, func(context.Context, repositories.Transaction) (int, error) {
			return 42, nil
		})

		require.Error(t, err)
		assert.Equal(t, 0, result)
	})

	t.Run("propagates domain errors unchanged", func(t *testing.T) {
		ctx := context.Background()
		txMgr, tx, _ := beginMock(ctx)
		tx.On("Rollback").Return(nil)

		_, err := WithTransactionResult(ctx, txMgr, func(context.Context, repositories.Transaction) (int, error) {
			return 0, ErrUserNotFound
		})

		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.True(t, tx.rolledback)
	})
}
