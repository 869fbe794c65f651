// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrInvalidLine = errors.New("invalid approval line")
var ErrUnauthorized = errors.New("unauthorized")
var ErrInvalidState = errors.New("invalid state")
var ErrNotCancellable = errors.New("not cancellable")
var ErrValidation = errors.New("validation failed")
var ErrAlreadyInFlight = errors.New("approval already in flight for reference")
var ErrConcurrentUpdate = errors.New("concurrent update")
