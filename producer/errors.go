package producer

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/helix-tools/etl-go/types"
)

// MissingCredentialsError is returned when no storage credentials could be
// resolved. Nothing was written.
type MissingCredentialsError struct {
	Target types.UploadTarget
	Err    error
}

func (e *MissingCredentialsError) Error() string {
	if e.Target.Key == "" {
		return fmt.Sprintf("credentials not available: %v", e.Err)
	}
	return fmt.Sprintf("credentials not available for %s: %v", e.Target, e.Err)
}

func (e *MissingCredentialsError) Unwrap() error {
	return e.Err
}

// IsMissingCredentialsError checks if the error is a MissingCredentialsError.
func IsMissingCredentialsError(err error) bool {
	var credErr *MissingCredentialsError
	return errors.As(err, &credErr)
}

func isMissingCredentials(err error) bool {
	var emptyErr *credentials.StaticCredentialsEmptyError
	return errors.As(err, &emptyErr)
}
