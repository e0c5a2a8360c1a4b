package errors

import (
	"errors"
	"fmt"
)

// Kind - машиночитаемый вид доменной ошибки. По нему внешний слой (ingress)
// решает, каким HTTP-кодом ответить.
type Kind string

const (
	KindValidation   Kind = "VALIDATION"
	KindNotFound     Kind = "NOT_FOUND"
	KindInvalidState Kind = "INVALID_STATE"
	KindConflict     Kind = "CONFLICT"
)

var (
	// JWT и токены (нужны для WebSocket-рукопожатия)
	ErrInvalidSigningMethod = fmt.Errorf("неверный метод подписи токена")
	ErrInvalidToken         = fmt.Errorf("недопустимый токен")
	ErrTokenExpired         = fmt.Errorf("срок действия токена истёк")
	ErrTokenNotYetValid     = fmt.Errorf("токен ещё не активен")

	// Общие
	ErrNotFound   = fmt.Errorf("запись не найдена")
	ErrBadRequest = fmt.Errorf("неверный запрос")
)

// DomainError - ошибка движка очереди с различимым видом.
// Никогда не ретраится внутри ядра.
type DomainError struct {
	Kind    Kind
	Message string
}

func (e *DomainError) Error() string { return e.Message }

func newDomainError(kind Kind, format string, args ...interface{}) error {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError - некорректные входные данные при создании тикета.
func NewValidationError(format string, args ...interface{}) error {
	return newDomainError(KindValidation, format, args...)
}

// NewNotFoundError - тикет с таким ID движку неизвестен.
func NewNotFoundError(format string, args ...interface{}) error {
	return newDomainError(KindNotFound, format, args...)
}

// NewInvalidStateError - переход невозможен из текущего статуса тикета.
func NewInvalidStateError(format string, args ...interface{}) error {
	return newDomainError(KindInvalidState, format, args...)
}

// NewConflictError - повтор терминального перехода по уже закрытому тикету.
func NewConflictError(format string, args ...interface{}) error {
	return newDomainError(KindConflict, format, args...)
}

// KindOf извлекает вид доменной ошибки. Вторым значением возвращает false,
// если ошибка не доменная.
func KindOf(err error) (Kind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// IsKind - удобная проверка для тестов и обработчиков.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// HttpError - обертка для ответа внешнему слою: HTTP-код, сообщение для
// пользователя и внутренняя ошибка для логов.
type HttpError struct {
	Code    int
	Message string
	Err     error
	Context map[string]interface{}
}

func (e *HttpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HttpError) Unwrap() error { return e.Err }

func NewHttpError(code int, message string, err error, context map[string]interface{}) error {
	return &HttpError{Code: code, Message: message, Err: err, Context: context}
}
