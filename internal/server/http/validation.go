package http

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const maxTaskIDLength = 128

var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func validateTaskID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("task id is required")
	}
	if len(id) > maxTaskIDLength {
		return fmt.Errorf("task id too long (max %d characters)", maxTaskIDLength)
	}
	if !taskIDPattern.MatchString(id) {
		return errors.New("task id contains invalid characters")
	}
	return nil
}
