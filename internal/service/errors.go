package service

import (
	"errors"

	"gorm.io/gorm"
)

// isNotFound reports whether the error is a missing-record lookup result.
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
