package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
)

const (
	productIDPrefix = "prd_"
	priceIDPrefix   = "prc_"
	orderIDPrefix   = "ord_"
)

func newID(prefix string) string {
	return prefix + ulid.Make().String()
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// repoErrorMapping names the sentinels a service translates repository failures into.
type repoErrorMapping struct {
	notFound    error
	conflict    error
	unavailable error
}

func (m repoErrorMapping) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && m.notFound != nil:
			return fmt.Errorf("%w: %v", m.notFound, err)
		case repoErr.IsConflict() && m.conflict != nil:
			return fmt.Errorf("%w: %v", m.conflict, err)
		}
	}
	return fmt.Errorf("%w: %v", m.unavailable, err)
}
