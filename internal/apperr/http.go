package apperr

import "net/http"

// HTTPStatus maps an error to the response status. Errors outside the
// taxonomy are 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindLedger:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to put in a response body. Internal and
// provider causes are never exposed.
func PublicMessage(err error) string {
	e, ok := As(err)
	if !ok {
		return "internal error"
	}
	switch e.Kind {
	case KindInternal:
		return "internal error"
	case KindProvider:
		if e.Message == "" {
			return "payment provider error"
		}
		return e.Message
	default:
		return e.Message
	}
}
