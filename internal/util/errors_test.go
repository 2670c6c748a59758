package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{ErrForbidden, KindAuthorization},
		{fmt.Errorf("%w: only the author can do that", ErrForbidden), KindAuthorization},
		{ErrAttemptFinalized, KindState},
		{ErrAlreadyFinalized, KindState},
		{ErrNotInProgress, KindState},
		{fmt.Errorf("%w: option 3 does not belong to this question", ErrInvalidSubmission), KindValidation},
		{ErrQuestionMismatch, KindValidation},
		{ErrValidation, KindValidation},
		{ErrAttemptLimitExceeded, KindLimit},
		{ErrQuizNotFound, KindNotFound},
		{ErrAttemptNotFound, KindNotFound},
		{ErrEmailRegistered, KindConflict},
		{ErrBusy, KindConflict},
		{ErrInvalidLogin, KindUnauthenticated},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.kind, KindOf(tc.err), tc.err.Error())
	}
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{fmt.Errorf("%w: max 2", ErrAttemptLimitExceeded), http.StatusConflict, "attempt_limit"},
		{ErrAlreadyFinalized, http.StatusConflict, "invalid_state"},
		{ErrQuestionMismatch, http.StatusUnprocessableEntity, "validation"},
		{ErrForbidden, http.StatusForbidden, "forbidden"},
		{ErrQuizNotFound, http.StatusNotFound, "not_found"},
		{errors.New("db exploded"), http.StatusInternalServerError, ""},
	}
	for _, tc := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		HandleError(c, tc.err)

		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.kind, resp.Error)
		if tc.status == http.StatusInternalServerError {
			// 内部错误不向客户端暴露细节
			assert.Equal(t, "Internal server error", resp.Message)
		} else {
			assert.Equal(t, tc.err.Error(), resp.Message)
		}
	}
}
