//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// These imports are not used at runtime. They keep mockgen, invoked through
// the go:generate lines of the contract package, pinned in go.mod.
package groupchat

import (
	_ "go.uber.org/mock/mockgen"
)
