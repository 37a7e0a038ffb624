package browserpool

import "errors"

var (
	ErrPoolShutdown  = errors.New("browser pool is shutting down")
	ErrInstanceDead  = errors.New("browser instance is dead")
	ErrRestartFailed = errors.New("browser restart failed")
	ErrLeaseFailed   = errors.New("browser context lease failed")
)
