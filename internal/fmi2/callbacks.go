//go:build darwin || linux

package fmi2

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// purego callbacks are a finite process resource and are never freed, so
// the trampolines are created once. Everything instance-specific hangs off
// the ComponentEnvironment id carried in each instance's own table.
var (
	trampolines struct {
		once   sync.Once
		err    error
		logger uintptr
		calloc uintptr
		free   uintptr
	}

	environments sync.Map // uintptr -> *zap.Logger
	nextEnv      atomic.Uintptr
)

func libcPath() string {
	if runtime.GOOS == "darwin" {
		return "/usr/lib/libSystem.B.dylib"
	}
	return "libc.so.6"
}

func initTrampolines() error {
	trampolines.once.Do(func() {
		libc, err := purego.Dlopen(libcPath(), purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			trampolines.err = fmt.Errorf("fmi2: open libc: %w", err)
			return
		}
		// fmi2CallbackAllocateMemory and fmi2CallbackFreeMemory have the
		// exact signatures of calloc and free.
		if trampolines.calloc, err = purego.Dlsym(libc, "calloc"); err != nil {
			trampolines.err = fmt.Errorf("fmi2: resolve calloc: %w", err)
			return
		}
		if trampolines.free, err = purego.Dlsym(libc, "free"); err != nil {
			trampolines.err = fmt.Errorf("fmi2: resolve free: %w", err)
			return
		}
		trampolines.logger = purego.NewCallback(logMessage)
	})
	return trampolines.err
}

// logMessage is the fmi2CallbackLogger trampoline. The C signature is
// variadic; the format string is logged unexpanded.
func logMessage(env, instanceName uintptr, status int32, category, message uintptr) {
	log := Logger()
	if l, ok := environments.Load(env); ok {
		log = l.(*zap.Logger)
	}
	if ce := log.Check(statusLevel(Status(status)), cString(message)); ce != nil {
		ce.Write(
			zap.String("instance", cString(instanceName)),
			zap.String("category", cString(category)),
			zap.Stringer("status", Status(status)),
		)
	}
}

func statusLevel(s Status) zapcore.Level {
	switch s {
	case StatusWarning, StatusDiscard:
		return zapcore.WarnLevel
	case StatusError, StatusFatal:
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

const maxCString = 1 << 16

func cString(p uintptr) string {
	if p == 0 {
		return ""
	}
	base := unsafe.Pointer(p)
	n := 0
	for n < maxCString && *(*byte)(unsafe.Add(base, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(base), n))
}

// installCallbacks fills b's callback table with the shared trampolines and
// a fresh environment id bound to log. The id is released on Close.
func installCallbacks(b *Binding, log *zap.Logger) error {
	if err := initTrampolines(); err != nil {
		return err
	}
	if log == nil {
		log = Logger()
	}
	env := nextEnv.Add(1)
	environments.Store(env, log)

	b.Callbacks.Logger = trampolines.logger
	b.Callbacks.AllocateMemory = trampolines.calloc
	b.Callbacks.FreeMemory = trampolines.free
	b.Callbacks.ComponentEnvironment = env
	b.OnClose(func() error {
		environments.Delete(env)
		return nil
	})
	return nil
}
