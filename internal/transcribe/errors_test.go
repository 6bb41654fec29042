package transcribe

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	require.Nil(t, Classify(nil))

	cause := errors.New("boom")
	wrapped := fmt.Errorf("handler: %w", ModelInvocation(cause))
	got := Classify(wrapped)
	require.Equal(t, KindModelInvocation, got.Kind)
	require.ErrorIs(t, got, cause)

	unknown := Classify(cause)
	require.Equal(t, KindUnexpected, unknown.Kind)
	require.Equal(t, http.StatusInternalServerError, unknown.Status)
	require.Equal(t, MsgUnexpected, unknown.Public(false))
}

func TestErrorStatusAndPublicMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    *Error
		kind   Kind
		status int
		public string
	}{
		{"missing audio", Validation(MsgNoAudio, ErrNoAudio), KindValidation, http.StatusBadRequest, MsgNoAudio},
		{"too large", TooLarge(errors.New("limit")), KindValidation, http.StatusRequestEntityTooLarge, MsgBodyTooLarge},
		{"conversion", Conversion(MsgUndecodable, errors.New("illegal base64")), KindConversion, http.StatusInternalServerError, MsgUndecodable},
		{"model", ModelInvocation(errors.New("exit 1")), KindModelInvocation, http.StatusInternalServerError, MsgModelFailed},
		{"unexpected", Unexpected(errors.New("nil map")), KindUnexpected, http.StatusInternalServerError, MsgUnexpected},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.kind, tt.err.Kind)
			require.Equal(t, tt.status, tt.err.Status)
			require.Equal(t, tt.public, tt.err.Public(false))
			require.Contains(t, tt.err.Public(true), tt.public+": ")
			require.Contains(t, tt.err.Error(), tt.kind.String())
		})
	}
}

func TestPublicWithoutCause(t *testing.T) {
	t.Parallel()

	err := Validation(MsgInvalidBody, nil)
	require.Equal(t, MsgInvalidBody, err.Public(true))
	require.Equal(t, "ValidationError: "+MsgInvalidBody, err.Error())
}
