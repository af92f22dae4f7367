// Package guard flips the runtime into test mode as soon as any test binary
// links it, keeping main() entrypoints from starting servers during tests.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("EXPENSIO_TEST_MODE") == "" {
			_ = os.Setenv("EXPENSIO_TEST_MODE", "1")
		}
	})
}
