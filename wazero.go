package dispatch

import (
	"fmt"

	internal "github.com/jerbob92/wazero-dispatch/internal"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

type wazeroEngine struct {
	internal.Engine
}

func (we *wazeroEngine) NewFunctionExporterForModule(guest wazero.CompiledModule) FunctionExporter {
	return &functionExporter{
		guest: guest,
	}
}

// NewWasmCall binds a method thunk to an exported function of mod. The
// receiver of instance methods is passed as first parameter.
func NewWasmCall(mod api.Module, export string, params []TypeTag, ret TypeTag, instance bool) (CallFunc, error) {
	return internal.NewWasmCall(mod, export, params, ret, instance)
}

// WasmLifecycle builds lifecycle hooks from exported functions of mod.
func WasmLifecycle(mod api.Module, newExport, destroyExport, copyExport string) (Lifecycle, error) {
	return internal.WasmLifecycle(mod, newExport, destroyExport, copyExport)
}

// FunctionExporter configures the functions in the "env" module a guest
// imports to call back into the dispatcher.
type FunctionExporter interface {
	// ExportFunctions builds functions to export with a wazero.HostModuleBuilder
	// named "env".
	ExportFunctions(wazero.HostModuleBuilder) error
}

type functionExporter struct {
	guest wazero.CompiledModule
}

type unexportedFunctionError struct {
	name string
}

func (e unexportedFunctionError) Error() string {
	return fmt.Sprintf("you need to export the \"%s\" function to pass strings to the guest, with Emscripten you can do this using the \"EXPORTED_FUNCTIONS\" option, you will need to prepend exports with an underscore, so you have to add \"_%s\" to the list", e.name, e.name)
}

// ExportFunctions implements FunctionExporter.ExportFunctions
func (e functionExporter) ExportFunctions(b wazero.HostModuleBuilder) error {
	// First validate whether required functions are available.
	requiredFunctions := []string{"free", "malloc"}
	exportedFunctions := e.guest.ExportedFunctions()
	for i := range requiredFunctions {
		requiredFunction := requiredFunctions[i]
		if _, ok := exportedFunctions[requiredFunction]; !ok {
			return unexportedFunctionError{
				name: requiredFunction,
			}
		}
	}

	b.NewFunctionBuilder().
		WithName("_dispatch_handle_incref").
		WithParameterNames("handle").
		WithGoModuleFunction(internal.HandleIncref, []api.ValueType{api.ValueTypeI32}, []api.ValueType{}).
		Export("_dispatch_handle_incref")

	b.NewFunctionBuilder().
		WithName("_dispatch_handle_decref").
		WithParameterNames("handle").
		WithGoModuleFunction(internal.HandleDecref, []api.ValueType{api.ValueTypeI32}, []api.ValueType{}).
		Export("_dispatch_handle_decref")

	b.NewFunctionBuilder().
		WithName("_dispatch_log").
		WithParameterNames("level", "message").
		WithGoModuleFunction(internal.Log, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{}).
		Export("_dispatch_log")

	b.NewFunctionBuilder().
		WithName("_dispatch_flush_pending_destroys").
		WithResultNames("failed").
		WithGoModuleFunction(internal.FlushPendingDestroys, []api.ValueType{}, []api.ValueType{api.ValueTypeI32}).
		Export("_dispatch_flush_pending_destroys")

	b.NewFunctionBuilder().
		WithName("_dispatch_live_handles").
		WithResultNames("count").
		WithGoModuleFunction(internal.LiveHandles, []api.ValueType{}, []api.ValueType{api.ValueTypeI32}).
		Export("_dispatch_live_handles")

	return nil
}
