package vault

import (
	"testing"

	"klinik-backend/internal/database"
	"klinik-backend/internal/ledger"
	"klinik-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// :memory: veritabanı bağlantı başına ayrıdır; tek bağlantıya sabitle
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string, role models.UserRole) *models.User {
	t.Helper()
	u := models.User{
		Name:         name,
		Email:        name + "@klinik.local",
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, db.Create(&u).Error)
	return &u
}

func seedVault(t *testing.T, db *gorm.DB, name string, custodianID uint, balance float64) *models.Vault {
	t.Helper()
	v := models.Vault{
		Name:           name,
		CustodianID:    custodianID,
		CurrentBalance: balance,
		IsActive:       true,
	}
	require.NoError(t, db.Create(&v).Error)
	return &v
}

func TestDepositAndWithdraw(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := seedUser(t, db, "kasiyer", models.RoleCashier)
	v := seedVault(t, db, "Ana Kasa", user.ID, 0)

	_, err := svc.Deposit(DepositCommand{VaultID: v.ID, ActorID: user.ID, Amount: 1000})
	require.NoError(t, err)

	_, err = svc.Withdraw(WithdrawCommand{VaultID: v.ID, ActorID: user.ID, Amount: 300})
	require.NoError(t, err)

	balance, err := svc.CurrentBalance(v.ID)
	require.NoError(t, err)
	assert.InDelta(t, 700, balance, 0.001)

	// defter toplamı ile satır bakiyesi her an eşit olmalı
	ledgerBalance, err := svc.LedgerBalance(v.ID)
	require.NoError(t, err)
	assert.InDelta(t, balance, ledgerBalance, 0.001)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := seedUser(t, db, "kasiyer", models.RoleCashier)
	v := seedVault(t, db, "Ana Kasa", user.ID, 0)

	_, err := svc.Deposit(DepositCommand{VaultID: v.ID, ActorID: user.ID, Amount: 100})
	require.NoError(t, err)

	_, err = svc.Withdraw(WithdrawCommand{VaultID: v.ID, ActorID: user.ID, Amount: 200})
	var insufficientErr *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &insufficientErr)

	// bakiye değişmedi, yarım hareket kaydı kalmadı
	balance, err := svc.CurrentBalance(v.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100, balance, 0.001)

	var count int64
	require.NoError(t, db.Model(&models.VaultTransaction{}).
		Where("vault_id = ? AND type = ?", v.ID, models.VaultTxWithdraw).
		Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestDepositValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := seedUser(t, db, "kasiyer", models.RoleCashier)
	v := seedVault(t, db, "Ana Kasa", user.ID, 0)

	_, err := svc.Deposit(DepositCommand{VaultID: v.ID, ActorID: user.ID, Amount: 0})
	var validationErr *ledger.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = svc.Deposit(DepositCommand{VaultID: 999, ActorID: user.ID, Amount: 50})
	var notFoundErr *ledger.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)

	require.NoError(t, db.Model(&models.Vault{}).Where("id = ?", v.ID).
		Update("is_active", false).Error)
	_, err = svc.Deposit(DepositCommand{VaultID: v.ID, ActorID: user.ID, Amount: 50})
	var stateErr *ledger.StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestTransferBetweenVaults(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := seedUser(t, db, "kasiyer", models.RoleCashier)
	source := seedVault(t, db, "Ana Kasa", user.ID, 0)
	dest := seedVault(t, db, "Acil Kasa", user.ID, 0)

	_, err := svc.Deposit(DepositCommand{VaultID: source.ID, ActorID: user.ID, Amount: 500})
	require.NoError(t, err)

	out, in, err := svc.TransferBetweenVaults(TransferCommand{
		SourceVaultID: source.ID,
		DestVaultID:   dest.ID,
		ActorID:       user.ID,
		Amount:        200,
	})
	require.NoError(t, err)

	// iki kayıt aynı PairRef ile bağlı
	assert.NotEmpty(t, out.PairRef)
	assert.Equal(t, out.PairRef, in.PairRef)
	assert.Equal(t, models.VaultTxTransferOut, out.Type)
	assert.Equal(t, models.VaultTxTransferIn, in.Type)

	sourceBalance, err := svc.CurrentBalance(source.ID)
	require.NoError(t, err)
	destBalance, err := svc.CurrentBalance(dest.ID)
	require.NoError(t, err)
	assert.InDelta(t, 300, sourceBalance, 0.001)
	assert.InDelta(t, 200, destBalance, 0.001)

	// transfer para yaratmaz: toplam korunur
	assert.InDelta(t, 500, sourceBalance+destBalance, 0.001)
}

func TestTransferValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := seedUser(t, db, "kasiyer", models.RoleCashier)
	source := seedVault(t, db, "Ana Kasa", user.ID, 0)
	dest := seedVault(t, db, "Acil Kasa", user.ID, 0)

	_, _, err := svc.TransferBetweenVaults(TransferCommand{
		SourceVaultID: source.ID, DestVaultID: source.ID, ActorID: user.ID, Amount: 10,
	})
	var validationErr *ledger.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	// yetersiz bakiyede iki taraf da değişmez
	_, _, err = svc.TransferBetweenVaults(TransferCommand{
		SourceVaultID: source.ID, DestVaultID: dest.ID, ActorID: user.ID, Amount: 50,
	})
	var insufficientErr *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &insufficientErr)

	sourceBalance, _ := svc.CurrentBalance(source.ID)
	destBalance, _ := svc.CurrentBalance(dest.ID)
	assert.InDelta(t, 0, sourceBalance, 0.001)
	assert.InDelta(t, 0, destBalance, 0.001)

	var count int64
	require.NoError(t, db.Model(&models.VaultTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestGatedDeposit(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := seedUser(t, db, "kasiyer", models.RoleCashier)
	v := seedVault(t, db, "Ana Kasa", user.ID, 0)

	vtx, err := svc.CreateGatedDeposit(DepositCommand{
		VaultID: v.ID, ActorID: user.ID, Amount: 150,
	}, 42)
	require.NoError(t, err)
	assert.Equal(t, models.VaultTxPending, vtx.Status)

	// pending hareket bakiyeye işlenmez
	balance, err := svc.CurrentBalance(v.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0, balance, 0.001)

	ledgerBalance, err := svc.LedgerBalance(v.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0, ledgerBalance, 0.001)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return CompleteGated(tx, 42)
	}))

	balance, err = svc.CurrentBalance(v.ID)
	require.NoError(t, err)
	assert.InDelta(t, 150, balance, 0.001)

	var updated models.VaultTransaction
	require.NoError(t, db.First(&updated, "id = ?", vtx.ID).Error)
	assert.Equal(t, models.VaultTxCompleted, updated.Status)
}

func TestListTransactionsFilter(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := seedUser(t, db, "kasiyer", models.RoleCashier)
	v := seedVault(t, db, "Ana Kasa", user.ID, 0)

	_, err := svc.Deposit(DepositCommand{VaultID: v.ID, ActorID: user.ID, Amount: 100})
	require.NoError(t, err)
	_, err = svc.Withdraw(WithdrawCommand{VaultID: v.ID, ActorID: user.ID, Amount: 40})
	require.NoError(t, err)

	txs, err := svc.ListTransactions(TransactionFilter{VaultID: &v.ID, Type: models.VaultTxWithdraw})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.InDelta(t, 40, txs[0].Amount, 0.001)
}
