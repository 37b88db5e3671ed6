// Package hostabi implements the Host ABI (spec §4.8, C8): the fixed
// set of functions a guest WebAssembly module imports from "env" to
// read its inputs, write its outputs and reach out to the host for
// attachments, subprocesses and TCP connections.
//
// Every call follows one convention: arguments are (ptr, len) pairs
// into guest linear memory or a *mut T output slot, and the return
// value is the u32 ErrorCode. Guest memory can move between calls (a
// grow invalidates prior base pointers), so every function resolves
// mod.Memory() fresh rather than caching it.
package hostabi

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/cuemby/avery/pkg/sandbox"
	"github.com/cuemby/avery/pkg/types"
	"github.com/cuemby/avery/pkg/wire"
)

// Host is the per-execution state backing one guest instance's ABI
// calls: its inputs, the outputs and error message accumulated via
// set_output/set_error, and the collaborators that satisfy the calls
// that reach outside the sandbox.
type Host struct {
	Sandbox      *sandbox.Sandbox
	Inputs       map[string]types.Value
	Attachments  AttachmentMaterializer
	Spawner      ProcessSpawner
	Conn         Connector
	HostOS       string

	outputs map[string]types.Value
	failed  bool
	errMsg  string
}

// NewHost constructs a Host ready to be bound into a wazero runtime.
func NewHost(sb *sandbox.Sandbox, inputs map[string]types.Value, attachments AttachmentMaterializer, spawner ProcessSpawner, conn Connector, hostOS string) *Host {
	return &Host{
		Sandbox:     sb,
		Inputs:      inputs,
		Attachments: attachments,
		Spawner:     spawner,
		Conn:        conn,
		HostOS:      hostOS,
		outputs:     make(map[string]types.Value),
	}
}

// Outputs returns the accumulated set_output values.
func (h *Host) Outputs() map[string]types.Value { return h.outputs }

// Failed and ErrorMessage report whether the guest called set_error.
func (h *Host) Failed() bool          { return h.failed }
func (h *Host) ErrorMessage() string { return h.errMsg }

// Bind registers every Host ABI function on the "env" module so it can
// be instantiated alongside the guest's WASI imports.
func (h *Host) Bind(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	return rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(h.getInputLen).Export("get_input_len").
		NewFunctionBuilder().WithFunc(h.getInput).Export("get_input").
		NewFunctionBuilder().WithFunc(h.setOutput).Export("set_output").
		NewFunctionBuilder().WithFunc(h.setError).Export("set_error").
		NewFunctionBuilder().WithFunc(h.getAttachmentPathLen).Export("get_attachment_path_len").
		NewFunctionBuilder().WithFunc(h.mapAttachment).Export("map_attachment").
		NewFunctionBuilder().WithFunc(h.getHostOS).Export("get_host_os").
		NewFunctionBuilder().WithFunc(h.hostPathExists).Export("host_path_exists").
		NewFunctionBuilder().WithFunc(h.startHostProcess).Export("start_host_process").
		NewFunctionBuilder().WithFunc(h.runHostProcess).Export("run_host_process").
		NewFunctionBuilder().WithFunc(h.connect).Export("connect").
		Instantiate(ctx)
}

// readString copies a (ptr, len) guest string out of linear memory.
func readString(mod api.Module, ptr, length uint32) (string, bool) {
	b, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(b), true
}

// writeU32 stores v at a *mut u32 output slot.
func writeU32(mod api.Module, ptr, v uint32) bool {
	return mod.Memory().WriteUint32Le(ptr, v)
}

func (h *Host) getInputLen(ctx context.Context, mod api.Module, keyPtr, keyLen, outLenPtr uint32) uint32 {
	key, ok := readString(mod, keyPtr, keyLen)
	if !ok {
		return uint32(ErrBadString)
	}
	val, ok := h.Inputs[key]
	if !ok {
		return uint32(ErrMissingKey)
	}
	enc, err := wire.Encode(val)
	if err != nil {
		return uint32(ErrEncode)
	}
	if !writeU32(mod, outLenPtr, uint32(len(enc))) {
		return uint32(ErrWriteBuffer)
	}
	return uint32(Ok)
}

func (h *Host) getInput(ctx context.Context, mod api.Module, keyPtr, keyLen, bufPtr, bufLen uint32) uint32 {
	key, ok := readString(mod, keyPtr, keyLen)
	if !ok {
		return uint32(ErrBadString)
	}
	val, ok := h.Inputs[key]
	if !ok {
		return uint32(ErrMissingKey)
	}
	enc, err := wire.Encode(val)
	if err != nil {
		return uint32(ErrEncode)
	}
	if uint32(len(enc)) > bufLen {
		return uint32(ErrWriteBuffer)
	}
	if !mod.Memory().Write(bufPtr, enc) {
		return uint32(ErrWriteBuffer)
	}
	return uint32(Ok)
}

func (h *Host) setOutput(ctx context.Context, mod api.Module, keyPtr, keyLen, bufPtr, bufLen uint32) uint32 {
	key, ok := readString(mod, keyPtr, keyLen)
	if !ok {
		return uint32(ErrBadString)
	}
	raw, ok := mod.Memory().Read(bufPtr, bufLen)
	if !ok {
		return uint32(ErrReadBuffer)
	}
	var val types.Value
	if err := wire.Decode(raw, &val); err != nil {
		return uint32(ErrDecode)
	}
	h.outputs[key] = val
	return uint32(Ok)
}

func (h *Host) setError(ctx context.Context, mod api.Module, msgPtr, msgLen uint32) uint32 {
	msg, ok := readString(mod, msgPtr, msgLen)
	if !ok {
		return uint32(ErrBadString)
	}
	h.failed = true
	h.errMsg = msg
	return uint32(Ok)
}

func (h *Host) getAttachmentPathLen(ctx context.Context, mod api.Module, namePtr, nameLen, outLenPtr uint32) uint32 {
	name, ok := readString(mod, namePtr, nameLen)
	if !ok {
		return uint32(ErrBadString)
	}
	path, err := h.Attachments.Materialize(name, false)
	if err != nil {
		return uint32(ErrAttachmentNF)
	}
	if !writeU32(mod, outLenPtr, uint32(len(path))) {
		return uint32(ErrWriteBuffer)
	}
	return uint32(Ok)
}

func (h *Host) mapAttachment(ctx context.Context, mod api.Module, namePtr, nameLen, unpack, pathPtr, pathLen uint32) uint32 {
	name, ok := readString(mod, namePtr, nameLen)
	if !ok {
		return uint32(ErrBadString)
	}
	path, err := h.Attachments.Materialize(name, unpack != 0)
	if err != nil {
		if unpack != 0 {
			return uint32(ErrAttachmentUnpk)
		}
		return uint32(ErrAttachmentMap)
	}
	if uint32(len(path)) > pathLen {
		return uint32(ErrWriteBuffer)
	}
	if !mod.Memory().Write(pathPtr, []byte(path)) {
		return uint32(ErrWriteBuffer)
	}
	return uint32(Ok)
}

func (h *Host) getHostOS(ctx context.Context, mod api.Module, bufPtr, outLenPtr uint32) uint32 {
	tag := h.HostOS
	if !mod.Memory().Write(bufPtr, []byte(tag)) {
		return uint32(ErrWriteBuffer)
	}
	if !writeU32(mod, outLenPtr, uint32(len(tag))) {
		return uint32(ErrWriteBuffer)
	}
	return uint32(Ok)
}

func (h *Host) hostPathExists(ctx context.Context, mod api.Module, pathPtr, pathLen, outPtr uint32) uint32 {
	p, ok := readString(mod, pathPtr, pathLen)
	if !ok {
		return uint32(ErrBadString)
	}
	exists, err := h.Sandbox.Exists(p)
	if err != nil {
		return uint32(ErrSandboxError)
	}
	var b byte
	if exists {
		b = 1
	}
	if !mod.Memory().Write(outPtr, []byte{b}) {
		return uint32(ErrWriteBuffer)
	}
	return uint32(Ok)
}

func (h *Host) decodeProcessRequest(mod api.Module, reqPtr, reqLen uint32) (ProcessRequest, uint32, bool) {
	raw, ok := mod.Memory().Read(reqPtr, reqLen)
	if !ok {
		return ProcessRequest{}, uint32(ErrReadBuffer), false
	}
	var req ProcessRequest
	if err := wire.Decode(raw, &req); err != nil {
		return ProcessRequest{}, uint32(ErrDecode), false
	}
	for _, p := range append([]string{req.Command}, req.Args...) {
		if _, err := h.Sandbox.Map(p); err != nil {
			return ProcessRequest{}, uint32(ErrSandboxError), false
		}
	}
	req.Command = h.remapPath(req.Command)
	for i, a := range req.Args {
		req.Args[i] = h.remapPath(a)
	}
	return req, 0, true
}

// remapPath rewrites a guest-visible path argument through the
// sandbox; arguments that aren't sandbox paths pass through unchanged.
func (h *Host) remapPath(arg string) string {
	if host, err := h.Sandbox.Map(arg); err == nil {
		return host
	}
	return arg
}

func (h *Host) startHostProcess(ctx context.Context, mod api.Module, reqPtr, reqLen, outPidPtr uint32) uint32 {
	req, errc, ok := h.decodeProcessRequest(mod, reqPtr, reqLen)
	if !ok {
		return errc
	}
	pid, err := h.Spawner.Start(req)
	if err != nil {
		return uint32(ErrSpawnFailed)
	}
	if !writeU32(mod, outPidPtr, uint32(pid)) {
		return uint32(ErrWriteBuffer)
	}
	return uint32(Ok)
}

func (h *Host) runHostProcess(ctx context.Context, mod api.Module, reqPtr, reqLen, outExitPtr uint32) uint32 {
	req, errc, ok := h.decodeProcessRequest(mod, reqPtr, reqLen)
	if !ok {
		return errc
	}
	code, err := h.Spawner.Run(req)
	if err != nil {
		code = -1
	}
	if !writeU32(mod, outExitPtr, uint32(code)) {
		return uint32(ErrWriteBuffer)
	}
	if err != nil {
		return uint32(ErrSpawnFailed)
	}
	return uint32(Ok)
}

func (h *Host) connect(ctx context.Context, mod api.Module, addrPtr, addrLen, outFdPtr uint32) uint32 {
	addr, ok := readString(mod, addrPtr, addrLen)
	if !ok {
		return uint32(ErrBadString)
	}
	fd, err := h.Conn.Connect(addr)
	if err != nil {
		return uint32(ErrConnect)
	}
	if !writeU32(mod, outFdPtr, uint32(fd)) {
		return uint32(ErrWriteBuffer)
	}
	return uint32(Ok)
}
