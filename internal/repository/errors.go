package repository

import "errors"

// ErrCacheMiss is returned by cache reads when the key is absent.
var ErrCacheMiss = errors.New("cache miss")
