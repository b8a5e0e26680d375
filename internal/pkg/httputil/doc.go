// Package httputil provides small helpers for writing consistent JSON HTTP
// responses and decoding request bodies.
package httputil
