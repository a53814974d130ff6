// Package ledger: Kasa defteri çekirdeğinin ortak hata tipleri.
// Her hata hangi entity'de hangi kuralın bozulduğunu taşır; denetim için
// genel "bir şeyler ters gitti" cevabı dönülmez.
package ledger

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ValidationError: Girdi hatalı (negatif tutar, aynı kasaya transfer vb.)
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// StateError: İşlem mevcut yaşam döngüsü durumunda geçersiz.
type StateError struct {
	Entity string
	ID     uint
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s #%d: %s", e.Entity, e.ID, e.Reason)
}

// ConflictError: Teklik/münhasırlık kuralı ihlali (örn: ikinci açık oturum).
type ConflictError struct {
	Entity string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
}

// AuthorizationError: İşlemi yapan kişi yetkili/atanmış kişi değil.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string { return e.Reason }

// TokenMismatchError: Devir kabul token'ı uyuşmuyor.
type TokenMismatchError struct {
	TransferID uint
}

func (e *TokenMismatchError) Error() string {
	return fmt.Sprintf("devir #%d: token uyuşmuyor", e.TransferID)
}

// InsufficientFundsError: Çekilmek istenen tutar kasa bakiyesini aşıyor.
type InsufficientFundsError struct {
	VaultID uint
	Amount  float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("kasa #%d: bakiye %.2f TL'lik işlem için yetersiz", e.VaultID, e.Amount)
}

// NotFoundError: Referans verilen kayıt yok.
type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s #%d bulunamadı", e.Entity, e.ID)
}

// ToFiberError: Servis hatasını HTTP durum koduna çevirir. Handler'lar
// servisten dönen hatayı olduğu gibi bununla sarar.
func ToFiberError(err error) error {
	var (
		vErr  *ValidationError
		sErr  *StateError
		cErr  *ConflictError
		aErr  *AuthorizationError
		tErr  *TokenMismatchError
		iErr  *InsufficientFundsError
		nfErr *NotFoundError
	)

	switch {
	case errors.As(err, &vErr):
		return fiber.NewError(fiber.StatusBadRequest, vErr.Error())
	case errors.As(err, &sErr):
		return fiber.NewError(fiber.StatusConflict, sErr.Error())
	case errors.As(err, &cErr):
		return fiber.NewError(fiber.StatusConflict, cErr.Error())
	case errors.As(err, &aErr):
		return fiber.NewError(fiber.StatusForbidden, aErr.Error())
	case errors.As(err, &tErr):
		return fiber.NewError(fiber.StatusForbidden, tErr.Error())
	case errors.As(err, &iErr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, iErr.Error())
	case errors.As(err, &nfErr):
		return fiber.NewError(fiber.StatusNotFound, nfErr.Error())
	default:
		return err
	}
}
