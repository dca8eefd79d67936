package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	wasmtime "github.com/bytecodealliance/wasmtime-go/v3"
	"github.com/rs/zerolog/log"
)

const (
	wasmFuel      = 10_000_000
	wasmOutputMax = 8192
)

// WASMEvaluator runs one exemption module. The module exports memory,
// allocate(size) -> ptr and evaluate(in, inLen, out, outMax) -> status, and
// writes a NUL-terminated JSON Response into out.
type WASMEvaluator struct {
	name string

	mu       sync.Mutex
	refueled uint64
	store    *wasmtime.Store
	instance *wasmtime.Instance
	memory   *wasmtime.Memory
	evaluate *wasmtime.Func
}

func NewWASMEvaluator(name string, engine *wasmtime.Engine, module *wasmtime.Module) (*WASMEvaluator, error) {
	store := wasmtime.NewStore(engine)
	if err := store.AddFuel(wasmFuel); err != nil {
		return nil, fmt.Errorf("add fuel: %w", err)
	}
	linker := wasmtime.NewLinker(engine)

	eval := &WASMEvaluator{name: name, store: store}

	if err := eval.defineHostFunctions(linker); err != nil {
		return nil, fmt.Errorf("define host functions: %w", err)
	}

	instance, err := linker.Instantiate(store, module)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	eval.instance = instance

	if err := eval.bindExports(); err != nil {
		return nil, err
	}

	return eval, nil
}

func (e *WASMEvaluator) Name() string {
	return e.name
}

func (e *WASMEvaluator) Evaluate(_ context.Context, req Request) (Response, error) {
	inputJSON, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	e.mu.Lock()
	outputJSON, err := e.callEvaluate(inputJSON)
	e.mu.Unlock()
	if err != nil {
		return Response{}, err
	}

	var resp Response
	if err := json.Unmarshal(outputJSON, &resp); err != nil {
		return Response{}, fmt.Errorf("unmarshal response: %w", err)
	}

	return resp, nil
}

func (e *WASMEvaluator) Close() error {
	return nil
}

func (e *WASMEvaluator) callEvaluate(input []byte) ([]byte, error) {
	// Top the budget back up to wasmFuel before every call.
	if consumed, ok := e.store.FuelConsumed(); ok && consumed > e.refueled {
		if err := e.store.AddFuel(consumed - e.refueled); err != nil {
			return nil, fmt.Errorf("refuel: %w", err)
		}
		e.refueled = consumed
	}

	inputPtr, err := e.allocateMemory(len(input))
	if err != nil {
		return nil, fmt.Errorf("allocate input: %w", err)
	}

	if err := e.writeMemory(inputPtr, input); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	outputPtr, err := e.allocateMemory(wasmOutputMax)
	if err != nil {
		return nil, fmt.Errorf("allocate output: %w", err)
	}

	result, err := e.evaluate.Call(e.store, inputPtr, len(input), outputPtr, wasmOutputMax)
	if err != nil {
		return nil, fmt.Errorf("call evaluate: %w", err)
	}

	if code, _ := result.(int32); code != 0 {
		return nil, fmt.Errorf("evaluation failed with code %d", code)
	}

	out, err := e.readMemory(outputPtr, wasmOutputMax)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return out, nil
}

func (e *WASMEvaluator) defineHostFunctions(linker *wasmtime.Linker) error {
	// log(ptr, len)
	logType := wasmtime.NewFuncType(
		[]*wasmtime.ValType{
			wasmtime.NewValType(wasmtime.KindI32),
			wasmtime.NewValType(wasmtime.KindI32),
		},
		[]*wasmtime.ValType{},
	)

	if err := linker.FuncNew("env", "log", logType, e.hostLog); err != nil {
		return err
	}

	// get_env(key_ptr, key_len, out_ptr, out_max_len) -> len or -1
	getEnvType := wasmtime.NewFuncType(
		[]*wasmtime.ValType{
			wasmtime.NewValType(wasmtime.KindI32),
			wasmtime.NewValType(wasmtime.KindI32),
			wasmtime.NewValType(wasmtime.KindI32),
			wasmtime.NewValType(wasmtime.KindI32),
		},
		[]*wasmtime.ValType{
			wasmtime.NewValType(wasmtime.KindI32),
		},
	)

	return linker.FuncNew("env", "get_env", getEnvType, e.hostGetEnv)
}

func (e *WASMEvaluator) bindExports() error {
	memExport := e.instance.GetExport(e.store, "memory")
	if memExport == nil || memExport.Memory() == nil {
		return fmt.Errorf("memory export not found")
	}
	e.memory = memExport.Memory()

	evalExport := e.instance.GetExport(e.store, "evaluate")
	if evalExport == nil || evalExport.Func() == nil {
		return fmt.Errorf("evaluate export not found")
	}
	e.evaluate = evalExport.Func()

	return nil
}

func (e *WASMEvaluator) allocateMemory(size int) (int32, error) {
	allocExport := e.instance.GetExport(e.store, "allocate")
	if allocExport == nil || allocExport.Func() == nil {
		return 0, fmt.Errorf("allocate export not found")
	}

	result, err := allocExport.Func().Call(e.store, size)
	if err != nil {
		return 0, err
	}

	ptr, ok := result.(int32)
	if !ok {
		return 0, fmt.Errorf("allocate returned %T", result)
	}
	return ptr, nil
}

func (e *WASMEvaluator) writeMemory(ptr int32, data []byte) error {
	mem := e.memory.UnsafeData(e.store)
	if ptr < 0 || int(ptr)+len(data) > len(mem) {
		return fmt.Errorf("write of %d bytes at %d out of bounds", len(data), ptr)
	}
	copy(mem[ptr:], data)
	return nil
}

func (e *WASMEvaluator) readMemory(ptr int32, maxLen int) ([]byte, error) {
	mem := e.memory.UnsafeData(e.store)
	if ptr < 0 || int(ptr) >= len(mem) {
		return nil, fmt.Errorf("read at %d out of bounds", ptr)
	}

	end := int(ptr)
	for end < len(mem) && end-int(ptr) < maxLen && mem[end] != 0 {
		end++
	}

	out := make([]byte, end-int(ptr))
	copy(out, mem[ptr:end])
	return out, nil
}

func (e *WASMEvaluator) hostLog(caller *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	msgPtr := args[0].I32()
	msgLen := args[1].I32()

	mem := caller.GetExport("memory").Memory().UnsafeData(caller)
	if msgPtr < 0 || msgLen < 0 || int(msgPtr)+int(msgLen) > len(mem) {
		return nil, wasmtime.NewTrap("log: out of bounds")
	}
	log.Debug().Str("policy", e.name).Msg(string(mem[msgPtr : msgPtr+msgLen]))

	return []wasmtime.Val{}, nil
}

func (e *WASMEvaluator) hostGetEnv(caller *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	keyPtr := args[0].I32()
	keyLen := args[1].I32()
	outPtr := args[2].I32()
	outMaxLen := args[3].I32()

	mem := caller.GetExport("memory").Memory().UnsafeData(caller)
	if keyPtr < 0 || keyLen < 0 || int(keyPtr)+int(keyLen) > len(mem) {
		return nil, wasmtime.NewTrap("get_env: out of bounds")
	}
	key := string(mem[keyPtr : keyPtr+keyLen])

	value := os.Getenv(key)
	if value == "" {
		return []wasmtime.Val{wasmtime.ValI32(-1)}, nil
	}

	valueBytes := []byte(value)
	if len(valueBytes) > int(outMaxLen) || int(outPtr)+len(valueBytes) > len(mem) {
		return []wasmtime.Val{wasmtime.ValI32(-1)}, nil
	}

	copy(mem[outPtr:], valueBytes)
	return []wasmtime.Val{wasmtime.ValI32(int32(len(valueBytes)))}, nil
}
