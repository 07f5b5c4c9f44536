package script

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Sandbox manages security restrictions for script execution
type Sandbox struct {
	securityLevel string
}

// NewSandbox creates a new sandbox with the given configuration
func NewSandbox(config *Config) *Sandbox {
	return &Sandbox{securityLevel: config.SecurityLevel}
}

// Apply applies sandbox restrictions to a VM runtime
func (s *Sandbox) Apply(vm *goja.Runtime) error {
	if s.securityLevel == SecurityLevelPermissive {
		return nil
	}

	dangerousGlobals := []string{
		"require",
		"module",
		"exports",
		"process",
		"global",
		"Buffer",
	}
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	if s.securityLevel == SecurityLevelStrict {
		restricted := func(goja.FunctionCall) goja.Value {
			panic(vm.NewTypeError("eval is not allowed in strict security mode"))
		}
		if err := vm.Set("eval", restricted); err != nil {
			return fmt.Errorf("failed to restrict eval: %w", err)
		}
		if err := vm.Set("Function", goja.Undefined()); err != nil {
			return fmt.Errorf("failed to restrict Function: %w", err)
		}
	}

	return nil
}

// registerConsole exposes console.log/info/warn/error backed by logger
func registerConsole(vm *goja.Runtime, logger *zap.Logger) error {
	console := vm.NewObject()

	bind := func(name string, log func(string, ...zap.Field)) error {
		return console.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, arg.String())
			}
			log("Script console output", zap.String("level", name), zap.String("output", strings.Join(parts, " ")))
			return goja.Undefined()
		})
	}

	if err := bind("log", logger.Info); err != nil {
		return err
	}
	if err := bind("info", logger.Info); err != nil {
		return err
	}
	if err := bind("warn", logger.Warn); err != nil {
		return err
	}
	if err := bind("error", logger.Error); err != nil {
		return err
	}

	return vm.Set("console", console)
}
