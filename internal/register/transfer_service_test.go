package register

import (
	"testing"
	"time"

	"klinik-backend/internal/ledger"
	"klinik-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type transferFixture struct {
	db       *gorm.DB
	sessions *Service
	svc      *TransferService
	reg      *models.CashRegister
	sender   *models.User
	receiver *models.User
	session  *models.RegisterSession
}

func newTransferFixture(t *testing.T, expiry time.Duration) *transferFixture {
	t.Helper()
	db := newTestDB(t)
	sessions := NewService(db)
	sender := seedUser(t, db, "gonderen", models.RoleCashier)
	receiver := seedUser(t, db, "devralan", models.RoleCashier)
	reg := seedRegister(t, db, "Vezne A")

	session, err := sessions.Open(OpenSessionCommand{
		RegisterID: reg.ID, OperatorID: sender.ID, OpenedByID: sender.ID, OpeningAmount: 300,
	})
	require.NoError(t, err)

	return &transferFixture{
		db:       db,
		sessions: sessions,
		svc:      NewTransferService(db, expiry),
		reg:      reg,
		sender:   sender,
		receiver: receiver,
		session:  session,
	}
}

func TestInitiateValidations(t *testing.T) {
	f := newTransferFixture(t, time.Hour)

	_, err := f.svc.Initiate(InitiateTransferCommand{
		FromSessionID: f.session.ID, ActorID: f.sender.ID, ToUserID: f.receiver.ID, Amount: 0,
	})
	var validationErr *ledger.ValidationError
	require.ErrorAs(t, err, &validationErr)

	// devri sadece oturumun sahibi başlatabilir
	_, err = f.svc.Initiate(InitiateTransferCommand{
		FromSessionID: f.session.ID, ActorID: f.receiver.ID, ToUserID: f.sender.ID, Amount: 100,
	})
	var authErr *ledger.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	// kendine devir olmaz
	_, err = f.svc.Initiate(InitiateTransferCommand{
		FromSessionID: f.session.ID, ActorID: f.sender.ID, ToUserID: f.sender.ID, Amount: 100,
	})
	require.ErrorAs(t, err, &validationErr)

	// askıdaki oturumdan devir başlatılamaz
	_, err = f.sessions.Suspend(f.session.ID)
	require.NoError(t, err)
	_, err = f.svc.Initiate(InitiateTransferCommand{
		FromSessionID: f.session.ID, ActorID: f.sender.ID, ToUserID: f.receiver.ID, Amount: 100,
	})
	var stateErr *ledger.StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestAcceptTokenMismatch(t *testing.T) {
	f := newTransferFixture(t, time.Hour)

	transfer, err := f.svc.Initiate(InitiateTransferCommand{
		FromSessionID: f.session.ID, ActorID: f.sender.ID, ToUserID: f.receiver.ID, Amount: 100,
	})
	require.NoError(t, err)

	_, err = f.svc.Accept(AcceptTransferCommand{
		TransferID: transfer.ID, Token: "yanlis-token", ActorID: f.receiver.ID,
	})
	var tokenErr *ledger.TokenMismatchError
	require.ErrorAs(t, err, &tokenErr)

	// yanlış token devri sonuçlandırmaz
	var got models.RegisterTransfer
	require.NoError(t, f.db.First(&got, "id = ?", transfer.ID).Error)
	assert.Equal(t, models.TransferStatusPending, got.Status)

	// doğru token ama yanlış kişi
	_, err = f.svc.Accept(AcceptTransferCommand{
		TransferID: transfer.ID, Token: transfer.TransferToken, ActorID: f.sender.ID,
	})
	var authErr *ledger.AuthorizationError
	require.ErrorAs(t, err, &authErr)
}

func TestAcceptWithDiscrepancy(t *testing.T) {
	f := newTransferFixture(t, time.Hour)

	transfer, err := f.svc.Initiate(InitiateTransferCommand{
		FromSessionID: f.session.ID, ActorID: f.sender.ID, ToUserID: f.receiver.ID, Amount: 100,
	})
	require.NoError(t, err)

	received := 90.0
	accepted, err := f.svc.Accept(AcceptTransferCommand{
		TransferID:     transfer.ID,
		Token:          transfer.TransferToken,
		ActorID:        f.receiver.ID,
		AmountReceived: &received,
	})
	require.NoError(t, err)

	assert.Equal(t, models.TransferStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AmountReceived)
	assert.InDelta(t, 90, *accepted.AmountReceived, 0.001)
	// fark sessizce yutulmaz
	assert.Contains(t, accepted.Notes, "Devir farkı")
	// gönderenin oturumu hâlâ aktif: devir bir oturuma bağlanmaz
	assert.Nil(t, accepted.ToSessionID)

	// ikinci kabul denemesi
	_, err = f.svc.Accept(AcceptTransferCommand{
		TransferID: transfer.ID, Token: transfer.TransferToken, ActorID: f.receiver.ID,
	})
	var stateErr *ledger.StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestAcceptOpensNewSession(t *testing.T) {
	f := newTransferFixture(t, time.Hour)

	transfer, err := f.svc.Initiate(InitiateTransferCommand{
		FromSessionID: f.session.ID, ActorID: f.sender.ID, ToUserID: f.receiver.ID, Amount: 150,
	})
	require.NoError(t, err)

	// gönderen oturumunu kapattı, veznede aktif oturum kalmadı
	_, err = f.sessions.Close(CloseSessionCommand{
		SessionID: f.session.ID, ActorID: f.sender.ID, ClosingAmount: ptr(150),
	})
	require.NoError(t, err)

	accepted, err := f.svc.Accept(AcceptTransferCommand{
		TransferID: transfer.ID, Token: transfer.TransferToken, ActorID: f.receiver.ID,
	})
	require.NoError(t, err)

	// devralan için devir tutarıyla yeni oturum açılır
	require.NotNil(t, accepted.ToSessionID)
	newSession, err := f.sessions.Get(*accepted.ToSessionID)
	require.NoError(t, err)
	assert.Equal(t, f.receiver.ID, newSession.OperatorID)
	assert.Equal(t, models.SessionStatusOpen, newSession.Status)
	assert.InDelta(t, 150, newSession.OpeningAmount, 0.001)
}

func TestAcceptIntoOwnSession(t *testing.T) {
	f := newTransferFixture(t, time.Hour)

	transfer, err := f.svc.Initiate(InitiateTransferCommand{
		FromSessionID: f.session.ID, ActorID: f.sender.ID, ToUserID: f.receiver.ID, Amount: 150,
	})
	require.NoError(t, err)

	// gönderen kapattı, devralan aynı veznede kendi oturumunu açtı
	_, err = f.sessions.Close(CloseSessionCommand{
		SessionID: f.session.ID, ActorID: f.sender.ID, ClosingAmount: ptr(150),
	})
	require.NoError(t, err)
	own, err := f.sessions.Open(OpenSessionCommand{
		RegisterID: f.reg.ID, OperatorID: f.receiver.ID, OpenedByID: f.receiver.ID, OpeningAmount: 0,
	})
	require.NoError(t, err)

	accepted, err := f.svc.Accept(AcceptTransferCommand{
		TransferID: transfer.ID, Token: transfer.TransferToken, ActorID: f.receiver.ID,
	})
	require.NoError(t, err)

	require.NotNil(t, accepted.ToSessionID)
	assert.Equal(t, own.ID, *accepted.ToSessionID)
}

func TestReject(t *testing.T) {
	f := newTransferFixture(t, time.Hour)

	transfer, err := f.svc.Initiate(InitiateTransferCommand{
		FromSessionID: f.session.ID, ActorID: f.sender.ID, ToUserID: f.receiver.ID, Amount: 100,
	})
	require.NoError(t, err)

	// reddetmek de sadece atanan kişinin hakkı
	_, err = f.svc.Reject(transfer.ID, f.sender.ID, "")
	var authErr *ledger.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	rejected, err := f.svc.Reject(transfer.ID, f.receiver.ID, "tutar uyuşmuyor")
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusRejected, rejected.Status)
	assert.Contains(t, rejected.Notes, "tutar uyuşmuyor")
	require.NotNil(t, rejected.ResolvedAt)

	_, err = f.svc.Reject(transfer.ID, f.receiver.ID, "")
	var stateErr *ledger.StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestExpireStale(t *testing.T) {
	// negatif süre: devir oluştuğu anda süresi geçmiş olur
	f := newTransferFixture(t, -time.Hour)

	transfer, err := f.svc.Initiate(InitiateTransferCommand{
		FromSessionID: f.session.ID, ActorID: f.sender.ID, ToUserID: f.receiver.ID, Amount: 100,
	})
	require.NoError(t, err)

	n, err := f.svc.ExpireStale(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// tekrar çalıştırmak ek etki üretmez
	n, err = f.svc.ExpireStale(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	var got models.RegisterTransfer
	require.NoError(t, f.db.First(&got, "id = ?", transfer.ID).Error)
	assert.Equal(t, models.TransferStatusExpired, got.Status)
}

func TestAcceptExpired(t *testing.T) {
	f := newTransferFixture(t, -time.Hour)

	transfer, err := f.svc.Initiate(InitiateTransferCommand{
		FromSessionID: f.session.ID, ActorID: f.sender.ID, ToUserID: f.receiver.ID, Amount: 100,
	})
	require.NoError(t, err)

	// sweep beklenmeden kabul denemesi de süreyi fark eder
	_, err = f.svc.Accept(AcceptTransferCommand{
		TransferID: transfer.ID, Token: transfer.TransferToken, ActorID: f.receiver.ID,
	})
	var stateErr *ledger.StateError
	require.ErrorAs(t, err, &stateErr)

	var got models.RegisterTransfer
	require.NoError(t, f.db.First(&got, "id = ?", transfer.ID).Error)
	assert.Equal(t, models.TransferStatusExpired, got.Status)
}
