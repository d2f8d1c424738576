// Package core provides the fundamental building blocks of the anvil ORM.
// This file holds small shared helpers.
package core

import "time"

// timeNow returns the current UTC instant. Centralized so timestamp
// columns always carry UTC regardless of process locale.
func timeNow() time.Time {
	return time.Now().UTC()
}
