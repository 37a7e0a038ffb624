package render

import "errors"

var (
	ErrNavigateFailed       = errors.New("render: navigation failed")
	ErrWaitTimeout          = errors.New("render: wait condition timed out")
	ErrExtractHTML          = errors.New("render: failed to extract HTML")
	ErrStatusCapture        = errors.New("render: failed to capture status code")
	ErrChallengeUnresolved  = errors.New("render: challenge signals did not clear before timeout")
	ErrResponseTooLarge     = errors.New("render: response exceeds maximum size")
	ErrDOMSerializeFailed   = errors.New("render: failed to serialize post-render DOM")
)
