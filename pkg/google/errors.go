package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/harrisonrobin/timebox/pkg/errs"
)

// classify maps a Calendar API failure onto the errs taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%s: %w: %v", op, errs.ErrUnauthenticated, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, errs.ErrTimeout)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %s", op, errs.ErrUnauthenticated, apiErr.Message)
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%s: %w: %s", op, errs.ErrNotFound, apiErr.Message)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, errs.ErrExternalService, err)
}
