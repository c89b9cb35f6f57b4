// Copyright © 2018 One Concern

package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oneconcern/modelcrawler/pkg/errors"
	"github.com/oneconcern/modelcrawler/pkg/graph/status"
)

// postgres error codes
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeAdminShutdown       = "57P01"
	codeCrashShutdown       = "57P02"
	codeCannotConnectNow    = "57P03"
	codeTooManyConnections  = "53300"
	classConnection         = "08"
	classDataException      = "22"
	classSyntaxOrAccess     = "42"
)

// mapError maps a database error to the graph store errors
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if errors.As(err, &e) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return status.ErrConflict.Wrap(err)
		case pgErr.Code == codeForeignKeyViolation:
			return status.ErrParentNotFound.Wrap(err)
		case pgErr.Code == codeCheckViolation:
			return status.ErrInterface.Wrap(err)
		case pgErr.Code == codeAdminShutdown, pgErr.Code == codeCrashShutdown,
			pgErr.Code == codeCannotConnectNow, pgErr.Code == codeTooManyConnections,
			strings.HasPrefix(pgErr.Code, classConnection):
			return status.ErrCommunication.Wrap(err)
		case strings.HasPrefix(pgErr.Code, classDataException), strings.HasPrefix(pgErr.Code, classSyntaxOrAccess):
			return status.ErrInterface.Wrap(err)
		default:
			return status.ErrBackend.Wrap(err)
		}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.ErrCommunication.Wrap(err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return status.ErrCommunication.Wrap(err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return status.ErrCommunication.Wrap(err)
	case errors.As(err, &netErr), pgconn.Timeout(err), pgconn.SafeToRetry(err):
		return status.ErrCommunication.Wrap(err)
	default:
		return status.ErrBackend.Wrap(err)
	}
}
