package exception

import (
	"fmt"
	"runtime/debug"

	"github.com/mezonai/bitvm20/logx"
	"github.com/mezonai/bitvm20/monitoring"
)

// SafeGo runs fn in a goroutine and logs a recovered panic. onPanic, when
// given, receives the recovered value.
func SafeGo(name string, fn func(), onPanic ...func(r interface{})) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("PANIC", fmt.Sprintf("panic in %s: %v\n%s", name, r, debug.Stack()))
				for _, h := range onPanic {
					h(r)
				}
			}
		}()
		fn()
	}()
}
