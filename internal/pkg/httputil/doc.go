// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Every handler writes through these helpers so that all endpoints answer
// with the same envelope: {success, message, data, errors, pagination}.
package httputil
