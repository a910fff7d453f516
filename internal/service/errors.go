// Пакет service — бизнес-логика Audio Server.
// errors.go — типизированные ошибки сервисного слоя с HTTP-кодом.
package service

import (
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/goaudiostore/internal/api/errors"
)

// ErrorKind — категория ошибки сервиса.
type ErrorKind int

// Категории ошибок.
const (
	KindMissingFile ErrorKind = iota + 1
	KindNotFound
	KindFileMissing
	KindFileTooLarge
	KindStoreUnavailable
	KindPersistenceFailure
	KindFileRemovalFailure
	KindTransferFailure
	KindInternal
)

// Error — ошибка сервиса с HTTP-кодом для ответа клиенту.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	// Err — исходная причина (не передаётся клиенту)
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// kindMeta — HTTP-статус и код ответа для каждой категории.
var kindMeta = map[ErrorKind]struct {
	status int
	code   string
}{
	KindMissingFile:        {http.StatusBadRequest, apierrors.CodeMissingFile},
	KindNotFound:           {http.StatusNotFound, apierrors.CodeNotFound},
	KindFileMissing:        {http.StatusNotFound, apierrors.CodeFileMissing},
	KindFileTooLarge:       {http.StatusRequestEntityTooLarge, apierrors.CodeFileTooLarge},
	KindStoreUnavailable:   {http.StatusInternalServerError, apierrors.CodeStoreUnavailable},
	KindPersistenceFailure: {http.StatusInternalServerError, apierrors.CodePersistenceFailure},
	KindFileRemovalFailure: {http.StatusInternalServerError, apierrors.CodeFileRemovalFailure},
	KindTransferFailure:    {http.StatusInternalServerError, apierrors.CodeTransferFailure},
	KindInternal:           {http.StatusInternalServerError, apierrors.CodeInternalError},
}

// newError создаёт ошибку сервиса указанной категории.
func newError(kind ErrorKind, message string, cause error) *Error {
	meta, ok := kindMeta[kind]
	if !ok {
		meta = kindMeta[KindInternal]
	}
	return &Error{
		Kind:       kind,
		StatusCode: meta.status,
		Code:       meta.code,
		Message:    message,
		Err:        cause,
	}
}
