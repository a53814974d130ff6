package settlement

import (
	"errors"
	"testing"

	"klinik-backend/internal/database"
	"klinik-backend/internal/ledger"
	"klinik-backend/internal/models"
	"klinik-backend/internal/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type settlementFixture struct {
	db       *gorm.DB
	svc      *Service
	cashier  *models.User
	approver *models.User
	item     *models.BillableItem
}

func newSettlementFixture(t *testing.T) *settlementFixture {
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

	cashier := &models.User{Name: "veznedar", Email: "veznedar@klinik.local", PasswordHash: "x", Role: models.RoleCashier}
	require.NoError(t, db.Create(cashier).Error)
	approver := &models.User{Name: "muhasebe", Email: "muhasebe@klinik.local", PasswordHash: "x", Role: models.RoleAccountant}
	require.NoError(t, db.Create(approver).Error)

	item := &models.BillableItem{
		PatientRef:      "H-1021",
		Description:     "Muayene + tahlil",
		TotalAmount:     500,
		RemainingAmount: 500,
		PaymentStatus:   models.PaymentStatusUnpaid,
	}
	require.NoError(t, db.Create(item).Error)

	return &settlementFixture{
		db:       db,
		svc:      NewService(db),
		cashier:  cashier,
		approver: approver,
		item:     item,
	}
}

func (f *settlementFixture) seedVault(t *testing.T) *models.Vault {
	t.Helper()
	v := models.Vault{Name: "Ana Kasa", CustodianID: f.approver.ID, IsActive: true}
	require.NoError(t, f.db.Create(&v).Error)
	return &v
}

func (f *settlementFixture) request(t *testing.T, amount float64, targetVault *uint) *models.SettlementRequest {
	t.Helper()
	req, err := f.svc.Request(RequestCommand{
		BillableItemID: f.item.ID,
		RequesterID:    f.cashier.ID,
		ApproverID:     f.approver.ID,
		Amount:         amount,
		Method:         models.PaymentMethodCard,
		TargetVaultID:  targetVault,
	})
	require.NoError(t, err)
	return req
}

func TestRequestValidations(t *testing.T) {
	f := newSettlementFixture(t)

	// nakit onay sürecine girmez
	_, err := f.svc.Request(RequestCommand{
		BillableItemID: f.item.ID, RequesterID: f.cashier.ID, ApproverID: f.approver.ID,
		Amount: 100, Method: models.PaymentMethodCash,
	})
	var validationErr *ledger.ValidationError
	require.ErrorAs(t, err, &validationErr)

	// kendi talebini kendisi onaylayamaz
	_, err = f.svc.Request(RequestCommand{
		BillableItemID: f.item.ID, RequesterID: f.cashier.ID, ApproverID: f.cashier.ID,
		Amount: 100, Method: models.PaymentMethodCard,
	})
	require.ErrorAs(t, err, &validationErr)

	_, err = f.svc.Request(RequestCommand{
		BillableItemID: f.item.ID, RequesterID: f.cashier.ID, ApproverID: f.approver.ID,
		Amount: 0, Method: models.PaymentMethodCard,
	})
	require.ErrorAs(t, err, &validationErr)

	_, err = f.svc.Request(RequestCommand{
		BillableItemID: 999, RequesterID: f.cashier.ID, ApproverID: f.approver.ID,
		Amount: 100, Method: models.PaymentMethodCard,
	})
	var notFoundErr *ledger.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestRequestDoesNotTouchItem(t *testing.T) {
	f := newSettlementFixture(t)

	req := f.request(t, 200, nil)
	assert.Equal(t, models.SettlementStatusPending, req.Status)
	assert.NotEmpty(t, req.ReferenceNo)

	// söz verilen para işlenmiş para değildir
	var item models.BillableItem
	require.NoError(t, f.db.First(&item, "id = ?", f.item.ID).Error)
	assert.InDelta(t, 0, item.PaidAmount, 0.001)
	assert.InDelta(t, 500, item.RemainingAmount, 0.001)
	assert.Equal(t, models.PaymentStatusUnpaid, item.PaymentStatus)

	var ftx models.FinancialTransaction
	require.NoError(t, f.db.First(&ftx, "id = ?", req.FinancialTransactionID).Error)
	assert.Equal(t, models.FinancialTxPending, ftx.Status)
}

func TestRequestBadVaultLeavesNothing(t *testing.T) {
	f := newSettlementFixture(t)

	// olmayan hedef kasa: talep zinciri parça parça yazılmaz
	badVault := uint(999)
	_, err := f.svc.Request(RequestCommand{
		BillableItemID: f.item.ID,
		RequesterID:    f.cashier.ID,
		ApproverID:     f.approver.ID,
		Amount:         200,
		Method:         models.PaymentMethodCard,
		TargetVaultID:  &badVault,
	})
	var notFoundErr *ledger.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)

	// ne talep ne tahsilat kaydı kalmış olmalı; tekrar denemede çift kayıt olmaz
	var reqCount, ftxCount, vtxCount int64
	require.NoError(t, f.db.Model(&models.SettlementRequest{}).Count(&reqCount).Error)
	require.NoError(t, f.db.Model(&models.FinancialTransaction{}).Count(&ftxCount).Error)
	require.NoError(t, f.db.Model(&models.VaultTransaction{}).Count(&vtxCount).Error)
	assert.Equal(t, int64(0), reqCount)
	assert.Equal(t, int64(0), ftxCount)
	assert.Equal(t, int64(0), vtxCount)

	// pasif kasa da aynı şekilde talebi düşürür
	v := f.seedVault(t)
	require.NoError(t, f.db.Model(&models.Vault{}).Where("id = ?", v.ID).
		Update("is_active", false).Error)

	_, err = f.svc.Request(RequestCommand{
		BillableItemID: f.item.ID,
		RequesterID:    f.cashier.ID,
		ApproverID:     f.approver.ID,
		Amount:         200,
		Method:         models.PaymentMethodCard,
		TargetVaultID:  &v.ID,
	})
	var stateErr *ledger.StateError
	require.ErrorAs(t, err, &stateErr)

	require.NoError(t, f.db.Model(&models.SettlementRequest{}).Count(&reqCount).Error)
	assert.Equal(t, int64(0), reqCount)
}

func TestApproveFlow(t *testing.T) {
	f := newSettlementFixture(t)
	req := f.request(t, 200, nil)

	approved, err := f.svc.Approve(req.ID, f.approver.ID, "uygun")
	require.NoError(t, err)
	assert.Equal(t, models.SettlementStatusApproved, approved.Status)
	require.NotNil(t, approved.ResolvedAt)

	var ftx models.FinancialTransaction
	require.NoError(t, f.db.First(&ftx, "id = ?", req.FinancialTransactionID).Error)
	assert.Equal(t, models.FinancialTxCompleted, ftx.Status)
	require.NotNil(t, ftx.ApproverID)
	assert.Equal(t, f.approver.ID, *ftx.ApproverID)

	var item models.BillableItem
	require.NoError(t, f.db.First(&item, "id = ?", f.item.ID).Error)
	assert.InDelta(t, 200, item.PaidAmount, 0.001)
	assert.InDelta(t, 300, item.RemainingAmount, 0.001)
	assert.Equal(t, models.PaymentStatusPartial, item.PaymentStatus)

	// ikinci onay denemesi kaybeder
	_, err = f.svc.Approve(req.ID, f.approver.ID, "tekrar")
	var stateErr *ledger.StateError
	require.ErrorAs(t, err, &stateErr)

	// bakiye ikinci kez işlenmemiş olmalı
	require.NoError(t, f.db.First(&item, "id = ?", f.item.ID).Error)
	assert.InDelta(t, 200, item.PaidAmount, 0.001)
}

func TestApproveFullPayment(t *testing.T) {
	f := newSettlementFixture(t)
	req := f.request(t, 500, nil)

	_, err := f.svc.Approve(req.ID, f.approver.ID, "")
	require.NoError(t, err)

	var item models.BillableItem
	require.NoError(t, f.db.First(&item, "id = ?", f.item.ID).Error)
	assert.Equal(t, models.PaymentStatusPaid, item.PaymentStatus)
	assert.InDelta(t, 0, item.RemainingAmount, 0.001)
}

func TestApproveWrongApprover(t *testing.T) {
	f := newSettlementFixture(t)
	req := f.request(t, 200, nil)

	_, err := f.svc.Approve(req.ID, f.cashier.ID, "")
	var authErr *ledger.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	var got models.SettlementRequest
	require.NoError(t, f.db.First(&got, "id = ?", req.ID).Error)
	assert.Equal(t, models.SettlementStatusPending, got.Status)
}

func TestRejectLeavesNoTrace(t *testing.T) {
	f := newSettlementFixture(t)
	v := f.seedVault(t)
	req := f.request(t, 200, &v.ID)

	rejected, err := f.svc.Reject(req.ID, f.approver.ID, "dekont okunamıyor")
	require.NoError(t, err)
	assert.Equal(t, models.SettlementStatusRejected, rejected.Status)
	assert.Equal(t, "dekont okunamıyor", rejected.ResolutionNotes)

	// fatura bakiyesi hiç değişmedi
	var item models.BillableItem
	require.NoError(t, f.db.First(&item, "id = ?", f.item.ID).Error)
	assert.InDelta(t, 0, item.PaidAmount, 0.001)
	assert.Equal(t, models.PaymentStatusUnpaid, item.PaymentStatus)

	// tahsilat iptal, bekleyen kasa hareketi temizlendi, kasa bakiyesi 0
	var ftx models.FinancialTransaction
	require.NoError(t, f.db.First(&ftx, "id = ?", req.FinancialTransactionID).Error)
	assert.Equal(t, models.FinancialTxCancelled, ftx.Status)

	var count int64
	require.NoError(t, f.db.Model(&models.VaultTransaction{}).
		Where("settlement_request_id = ?", req.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	var updated models.Vault
	require.NoError(t, f.db.First(&updated, "id = ?", v.ID).Error)
	assert.InDelta(t, 0, updated.CurrentBalance, 0.001)
}

func TestSendBack(t *testing.T) {
	f := newSettlementFixture(t)
	req := f.request(t, 200, nil)

	corrected := 180.0
	sentBack, err := f.svc.SendBack(req.ID, f.approver.ID, &corrected, "tutar dekontla uyuşmuyor")
	require.NoError(t, err)
	assert.Equal(t, models.SettlementStatusSentBack, sentBack.Status)
	require.NotNil(t, sentBack.CorrectedAmount)
	assert.InDelta(t, 180, *sentBack.CorrectedAmount, 0.001)

	var ftx models.FinancialTransaction
	require.NoError(t, f.db.First(&ftx, "id = ?", req.FinancialTransactionID).Error)
	assert.Equal(t, models.FinancialTxCancelled, ftx.Status)

	// iade edilen talep bu örnek için terminaldir
	_, err = f.svc.Approve(req.ID, f.approver.ID, "")
	var stateErr *ledger.StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestApproveWithTargetVault(t *testing.T) {
	f := newSettlementFixture(t)
	v := f.seedVault(t)
	req := f.request(t, 200, &v.ID)

	// onaydan önce kasa bakiyesi değişmez
	var before models.Vault
	require.NoError(t, f.db.First(&before, "id = ?", v.ID).Error)
	assert.InDelta(t, 0, before.CurrentBalance, 0.001)

	_, err := f.svc.Approve(req.ID, f.approver.ID, "")
	require.NoError(t, err)

	var after models.Vault
	require.NoError(t, f.db.First(&after, "id = ?", v.ID).Error)
	assert.InDelta(t, 200, after.CurrentBalance, 0.001)

	var vtx models.VaultTransaction
	require.NoError(t, f.db.First(&vtx, "settlement_request_id = ?", req.ID).Error)
	assert.Equal(t, models.VaultTxCompleted, vtx.Status)
	assert.Equal(t, req.ReferenceNo, vtx.Reference)

	// defter toplamı da aynı sonucu vermeli
	vsvc := vault.NewService(f.db)
	ledgerBalance, err := vsvc.LedgerBalance(v.ID)
	require.NoError(t, err)
	assert.InDelta(t, 200, ledgerBalance, 0.001)
}

func TestApproveRollsBackAsUnit(t *testing.T) {
	f := newSettlementFixture(t)
	v := f.seedVault(t)
	req := f.request(t, 200, &v.ID)

	// onay zincirinin ortasında hata: hiçbir parça işlenmemiş kalmalı
	applyHook = func(tx *gorm.DB) error {
		return errors.New("bağlantı koptu")
	}
	defer func() { applyHook = nil }()

	_, err := f.svc.Approve(req.ID, f.approver.ID, "")
	require.Error(t, err)

	var got models.SettlementRequest
	require.NoError(t, f.db.First(&got, "id = ?", req.ID).Error)
	assert.Equal(t, models.SettlementStatusPending, got.Status)

	var ftx models.FinancialTransaction
	require.NoError(t, f.db.First(&ftx, "id = ?", req.FinancialTransactionID).Error)
	assert.Equal(t, models.FinancialTxPending, ftx.Status)

	var item models.BillableItem
	require.NoError(t, f.db.First(&item, "id = ?", f.item.ID).Error)
	assert.InDelta(t, 0, item.PaidAmount, 0.001)

	var updated models.Vault
	require.NoError(t, f.db.First(&updated, "id = ?", v.ID).Error)
	assert.InDelta(t, 0, updated.CurrentBalance, 0.001)

	// hata geçince aynı talep sorunsuz onaylanabilir
	applyHook = nil
	_, err = f.svc.Approve(req.ID, f.approver.ID, "")
	require.NoError(t, err)
}
