package service

import (
	"pageinbox/internal/errors"
	"pageinbox/internal/i18n"
)

func storageError(tr *i18n.Translator, operation string, err error) error {
	return errors.Storage(operation, err).WithUserMessage(tr.T(i18n.KeyStorageFailure))
}

// upstreamError keeps the Graph client's AppError and its status context,
// filling in the caller-facing message when none is set.
func upstreamError(tr *i18n.Translator, err error) error {
	return upstreamErrorWithMessage(err, tr.T(i18n.KeyUpstreamFailure))
}

func upstreamErrorWithMessage(err error, userMessage string) error {
	if appErr, ok := errors.As(err); ok && appErr.Kind == errors.KindUpstream {
		wrapped := *appErr
		wrapped.UserMessage = userMessage
		return &wrapped
	}
	return errors.Upstream("graph", "", 0, err).WithUserMessage(userMessage)
}
