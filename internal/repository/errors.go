package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/xiaot623/gogo/convstore/internal/domain"
)

const (
	mysqlDuplicateEntry   = 1062
	mysqlNoReferencedRow  = 1452
	mysqlNoReferencedRow2 = 1216
)

// classify maps driver errors onto the domain taxonomy. session, when set,
// names the row whose insert failed so constraint violations can be reported
// against it.
func (s *SQLStore) classify(err error, op string, session *domain.Session) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			switch sqliteErr.ExtendedCode {
			case sqlite3.ErrConstraintForeignKey:
				return s.missingSession(op, session, err)
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
				return s.duplicate(op, session, sqliteErr.Error(), err)
			}
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrFull:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
		}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlDuplicateEntry:
			return s.duplicate(op, session, mysqlErr.Message, err)
		case mysqlNoReferencedRow, mysqlNoReferencedRow2:
			return s.missingSession(op, session, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

func (s *SQLStore) duplicate(op string, session *domain.Session, detail string, err error) error {
	if strings.Contains(detail, "sessions.name") || strings.Contains(detail, "uniq_sessions_name") {
		name := ""
		if session != nil {
			name = session.Name
		}
		return fmt.Errorf("%s: %w", op, domain.NameConflictError(name))
	}
	if strings.Contains(detail, "sessions.id") || strings.Contains(detail, "sessions.PRIMARY") ||
		strings.Contains(detail, "'PRIMARY'") {
		id := ""
		if session != nil {
			id = session.ID
		}
		return fmt.Errorf("%s: %w: %s", op, ErrDuplicateSession, id)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *SQLStore) missingSession(op string, session *domain.Session, err error) error {
	if session != nil {
		return fmt.Errorf("%s: %w", op, notFound(session.ID))
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrSessionNotFound, err)
}
