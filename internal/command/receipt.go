package command

import (
	"errors"
)

// Receipt is what an executor reports back after applying a command.
// Message is shown to the user as is.
type Receipt struct {
	ID      int64  `json:"id,omitempty"`
	Message string `json:"message"`
}

// Rejection is a failure whose Reason can be shown to the user verbatim,
// e.g. an unknown transaction id or a duplicate category name.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return r.Reason
}

func Reject(reason string) error {
	return &Rejection{Reason: reason}
}

// GenericFailure is shown for any error that is not a Rejection.
const GenericFailure = "處理您的請求時發生錯誤，請稍後再試。"

// UserMessage picks the text to show for err.
func UserMessage(err error) string {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return GenericFailure
}
