package domain

import "errors"

var ErrInvalidPageToken = errors.New("invalid page token")
