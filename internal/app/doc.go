// Package app provides the administrative service layer.
//
// Each mutation writes the binding store, drops cached lookups, re-resolves the
// channel's content and hands it to the publish relay so every instance updates
// its connected displays. Depends on domain interfaces, not concrete implementations.
package app
