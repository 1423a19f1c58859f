package models

import "errors"

// ErrInvalidGraph indicates a structurally invalid automation graph
// (duplicate node ids, dangling edges, malformed node configuration).
var ErrInvalidGraph = errors.New("invalid automation graph")
