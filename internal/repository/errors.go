// Package repository holds the MySQL data access layer.  The sentinel
// values below let handlers map failures to HTTP status codes without
// knowing about database/sql.
package repository

import "errors"

// ErrNotFound is returned when a row does not exist or is soft-deleted.
// Handlers translate it into 404.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller's padalinys does not own the
// row.  Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot proceed because
// of dependent rows, such as deleting a resource that is still lent out.
// Handlers translate it into 409.
var ErrConflict = errors.New("conflict")

// ErrNoChange is returned by updates that matched a row but had nothing
// to write.
var ErrNoChange = errors.New("no change")

var ErrEmailExists = errors.New("email already exists")
