// File: cabinet/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package cabinet implements a generation-indexed slot arena.
//
// Storing an object in a Cabinet yields a Token. The Token cannot reach the
// object on its own; it has to be presented back to the Cabinet, which checks
// that the slot still holds the same generation. Once the object is freed the
// Token goes stale and every lookup with it resolves to nil, even after the
// slot has been recycled for another object.
//
// Alloc, At, Update and Free are O(1). Cabinet is not safe for concurrent use;
// SyncCabinet adds a mutex for arenas shared between goroutines.
package cabinet
