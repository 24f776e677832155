package service

import (
	"errors"
	"fmt"
)

// Kind классифицирует ошибку бизнес-логики.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Reason уточняет причину отказа внутри вида ошибки.
type Reason string

const (
	ReasonAlreadyClosed       Reason = "already_closed"
	ReasonNoUnitsLeft         Reason = "no_units_left"
	ReasonSelfAccept          Reason = "self_accept"
	ReasonDuplicateDonor      Reason = "duplicate_donor"
	ReasonCooldownActive      Reason = "cooldown_active"
	ReasonMustBeAcceptedFirst Reason = "must_be_accepted_first"
	ReasonContention          Reason = "contention"
	ReasonCampInactive        Reason = "camp_inactive"
	ReasonHasDonations        Reason = "has_donations"
	ReasonNotOwner            Reason = "not_owner"
	ReasonWrongRole           Reason = "wrong_role"
)

// Error описывает ошибку сервиса с видом и причиной.
type Error struct {
	Kind   Kind
	Reason Reason
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
		if e.Reason != "" {
			msg += ": " + string(e.Reason)
		}
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по виду и причине. Пустая причина у цели совпадает с любой причиной того же вида.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrConflict      = &Error{Kind: KindConflict}

	ErrAlreadyClosed       = &Error{Kind: KindConflict, Reason: ReasonAlreadyClosed}
	ErrNoUnitsLeft         = &Error{Kind: KindConflict, Reason: ReasonNoUnitsLeft}
	ErrSelfAccept          = &Error{Kind: KindAuthorization, Reason: ReasonSelfAccept}
	ErrDuplicateDonor      = &Error{Kind: KindConflict, Reason: ReasonDuplicateDonor}
	ErrCooldownActive      = &Error{Kind: KindConflict, Reason: ReasonCooldownActive}
	ErrMustBeAcceptedFirst = &Error{Kind: KindConflict, Reason: ReasonMustBeAcceptedFirst}
	ErrContention          = &Error{Kind: KindConflict, Reason: ReasonContention}
	ErrCampInactive        = &Error{Kind: KindConflict, Reason: ReasonCampInactive}
	ErrHasDonations        = &Error{Kind: KindConflict, Reason: ReasonHasDonations}
	ErrNotOwner            = &Error{Kind: KindAuthorization, Reason: ReasonNotOwner}
	ErrWrongRole           = &Error{Kind: KindAuthorization, Reason: ReasonWrongRole}
)

// KindOf возвращает вид ошибки; ошибки вне сервиса считаются внутренними.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, reason Reason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) *Error {
	return newError(KindValidation, "", format, args...)
}

func notFoundError(format string, args ...any) *Error {
	return newError(KindNotFound, "", format, args...)
}

func conflictError(reason Reason, format string, args ...any) *Error {
	return newError(KindConflict, reason, format, args...)
}

func authorizationError(reason Reason, format string, args ...any) *Error {
	return newError(KindAuthorization, reason, format, args...)
}

func internalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: op, Err: err}
}
