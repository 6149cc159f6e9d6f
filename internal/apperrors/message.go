package apperrors

import (
	"errors"
	"fmt"
)

// UserMessage renders an error for the person who requested the preview.
// Each workflow kind has one message; details from the error (server
// message, last state) are appended when present.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var ae *Error
	errors.As(err, &ae)

	var msg string
	switch {
	case errors.Is(err, ErrConnectivity):
		msg = "The typesetting server could not be reached. Check the server address and try again."
	case errors.Is(err, ErrSubmission):
		msg = "The typesetting server did not accept the preview request."
	case errors.Is(err, ErrPoll):
		msg = "Lost contact with the typesetting server while the preview was being generated."
	case errors.Is(err, ErrRemoteJob):
		msg = "The typesetting server could not generate the preview."
		if ae != nil && ae.ServerMessage != "" {
			msg += " The server reported: " + ae.ServerMessage
		}
		return msg
	case errors.Is(err, ErrDownload):
		return "The preview was generated but could not be downloaded."
	case errors.Is(err, ErrTimeout):
		msg = "The preview took too long to generate."
	case errors.Is(err, ErrValidation):
		if ae != nil && ae.Field != "" {
			return fmt.Sprintf("The preview settings are invalid (%s): %s", ae.Field, ae.Message)
		}
		return "The preview settings are invalid: " + err.Error()
	case errors.Is(err, ErrNotFound):
		return "Not found: " + err.Error()
	default:
		return "Unexpected error: " + err.Error()
	}

	if ae != nil && ae.LastState != "" {
		msg += fmt.Sprintf(" (last job state: %s)", ae.LastState)
	}
	return msg
}
