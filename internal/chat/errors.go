package chat

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotRoomMember       = fmt.Errorf("%w: sender is not a room member", ErrValidation)
	ErrBodyTooLarge        = fmt.Errorf("%w: message body exceeds maximum size", ErrValidation)
	ErrNotAuthorized       = fmt.Errorf("%w: sender may not post to this room", ErrValidation)
	ErrDuplicateConnection = errors.New("transport already registered")
)
