package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNewError() {
	err := New(ErrCodeInvalidConfiguration, "database.dsn is required")
	suite.NotNil(err)
	suite.Equal(ErrCodeInvalidConfiguration, err.Code)
	suite.Equal("database.dsn is required", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestWrapfError() {
	cause := errors.New("connection refused")
	err := Wrapf(ErrCodeStoreUnavailable, cause, "acquire connection for %s", "SOL_USDC_PERP")
	suite.Equal(ErrCodeStoreUnavailable, err.Code)
	suite.Equal("acquire connection for SOL_USDC_PERP", err.Message)
	suite.Equal(cause, err.Cause)
	suite.Equal("[200] acquire connection for SOL_USDC_PERP: connection refused", err.Error())
}

func (suite *ErrorTestSuite) TestErrorString() {
	err := New(ErrCodePartitionMissing, "no partition")
	suite.Equal("[201] no partition", err.Error())
}

func (suite *ErrorTestSuite) TestUnwrap() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeQueryFailed, "read window", cause)
	suite.Equal(cause, err.Unwrap())
	suite.True(Is(err, cause))
	suite.Nil(New(ErrCodeStale, "stale").Unwrap())
}

func (suite *ErrorTestSuite) TestGetCodeFromWrapped() {
	cause := New(ErrCodeTooManyClients, "too many clients")
	err := Wrap(ErrCodeQueryFailed, "read window", cause)
	// outermost code wins
	suite.Equal(ErrCodeQueryFailed, GetCode(err))

	plain := fmt.Errorf("evaluate: %w", cause)
	suite.Equal(ErrCodeTooManyClients, GetCode(plain))
	suite.True(HasCode(plain, ErrCodeTooManyClients))
}

func (suite *ErrorTestSuite) TestGetCodeFromNonStructuredError() {
	suite.Equal(ErrCodeUnknown, GetCode(errors.New("standard error")))
}

func (suite *ErrorTestSuite) TestAsError() {
	err := New(ErrCodeBrokerRejected, "rejected")
	var structured *Error
	suite.True(As(err, &structured))
	suite.Equal(ErrCodeBrokerRejected, structured.Code)
}

func (suite *ErrorTestSuite) TestKindOf() {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), "Unknown"},
		{"config", New(ErrCodeInvalidConfiguration, "x"), "Fatal"},
		{"credentials", New(ErrCodeMissingCredentials, "x"), "Fatal"},
		{"partition", New(ErrCodePartitionMissing, "x"), "PartitionMissing"},
		{"stale", New(ErrCodeStale, "x"), "Stale"},
		{"strategy", New(ErrCodeStrategyRuntimeError, "x"), "StrategyError"},
		{"broker", New(ErrCodeBrokerRejected, "x"), "BrokerRejected"},
		{"size", New(ErrCodeInsufficientSize, "x"), "InsufficientSize"},
		{"transport", New(ErrCodeTransportClosed, "x"), "TransportClosed"},
		{"warmup", NewInsufficientDataError(26, 3, "BTC_USDC_PERP", "short"), "InsufficientWindow"},
		{"unknown code", New(ErrorCode(999), "x"), "Unknown"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.Equal(tt.want, KindOf(tt.err))
		})
	}
}

func (suite *ErrorTestSuite) TestIsFatal() {
	suite.True(IsFatal(New(ErrCodeInvalidConfiguration, "x")))
	suite.True(IsFatal(fmt.Errorf("startup: %w", New(ErrCodeStrategyNotFound, "x"))))
	suite.False(IsFatal(New(ErrCodeBrokerRejected, "x")))
	suite.False(IsFatal(errors.New("x")))
	suite.False(IsFatal(nil))
}

func (suite *ErrorTestSuite) TestErrorCodeValues() {
	suite.Equal(ErrorCode(1), ErrCodeUnknown)
	suite.Equal(ErrorCode(101), ErrCodeInvalidConfiguration)
	suite.Equal(ErrorCode(200), ErrCodeStoreUnavailable)
	suite.Equal(ErrorCode(300), ErrCodeIndicatorNotFound)
	suite.Equal(ErrorCode(402), ErrCodeStrategyRuntimeError)
	suite.Equal(ErrorCode(500), ErrCodeBrokerRejected)
	suite.Equal(ErrorCode(700), ErrCodeTransportClosed)
}

func (suite *ErrorTestSuite) TestNewInsufficientDataErrorf() {
	err := NewInsufficientDataErrorf(15, 4, "ETH_USDC_PERP", "rsi needs %d closes, got %d", 15, 4)
	suite.Equal(15, err.Required)
	suite.Equal(4, err.Actual)
	suite.Equal("ETH_USDC_PERP", err.Symbol)
	suite.Equal("rsi needs 15 closes, got 4", err.Error())
}

func (suite *ErrorTestSuite) TestIsInsufficientDataError() {
	suite.True(IsInsufficientDataError(NewInsufficientDataError(14, 10, "", "insufficient data")))
	suite.True(IsInsufficientDataError(fmt.Errorf("frame: %w", NewInsufficientDataError(14, 10, "", "x"))))
	suite.False(IsInsufficientDataError(errors.New("standard error")))
	suite.False(IsInsufficientDataError(New(ErrCodeInvalidParameter, "invalid parameter")))
	suite.False(IsInsufficientDataError(nil))
}
