package chat

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrForbidden      = errors.New("forbidden")
	ErrParentNotFound = errors.New("parent message not found")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrStore          = errors.New("failed to save message")
	ErrCompletion     = errors.New("failed to generate assistant reply")
	ErrReplyStore     = errors.New("failed to save assistant reply")
)

// Error carries a user-facing message and a sentinel kind for errors.Is.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func fail(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func wrap(kind error, err error) error {
	return &Error{Kind: kind, Msg: kind.Error(), Err: err}
}

// PublicMessage returns the text safe to show the caller.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "unexpected error"
}
