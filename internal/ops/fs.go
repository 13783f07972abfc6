package ops

import (
	"io"
	"os"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
)

// FsState tracks files handed out to scripts by RID.
type FsState struct {
	Files *core.ResourceTable[*os.File]
}

// Fs exposes the synchronous filesystem ops.
func Fs() ext.Extension {
	return ext.Extension{
		Name: "fs",
		Ops: []ext.Op{
			{Name: "internal_read_text_file", Fn: opReadTextFile, Arity: 1},
			{Name: "internal_write_text_file", Fn: opWriteTextFile, Arity: 2},
			{Name: "internal_open_file", Fn: opOpenFile, Arity: 1},
			{Name: "internal_create_file", Fn: opCreateFile, Arity: 1},
			{Name: "internal_copy_file", Fn: opCopyFile, Arity: 2},
			{Name: "internal_mk_dir", Fn: opMkDir, Arity: 1},
		},
		Scripts: []ext.Script{{Name: "ext:fs/fs.js", Source: fsJS}},
		InitStorage: func(s *core.Storage) {
			core.InitState(s, &FsState{Files: core.NewResourceTable[*os.File]()})
		},
	}
}

func fsState(a *engine.Agent) *FsState {
	hd := a.HostData().(*core.HostData)
	return core.State[*FsState](hd.Storage())
}

func pathArg(r *engine.Realm, args []engine.Value, op string) (string, error) {
	if len(args) == 0 || !isString(args[0]) {
		return "", core.OpError(core.KindTypeMismatch, op, "path must be a string")
	}
	return args[0].String(), nil
}

func opReadTextFile(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	path, err := pathArg(r, args, "internal_read_text_file")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.WrapError(core.KindFilesystem, "internal_read_text_file", err)
	}
	return r.String(string(data)), nil
}

func opWriteTextFile(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	path, err := pathArg(r, args, "internal_write_text_file")
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, core.OpError(core.KindTypeMismatch, "internal_write_text_file", "missing contents argument")
	}
	if err := os.WriteFile(path, []byte(args[1].String()), 0o644); err != nil {
		return nil, core.WrapError(core.KindFilesystem, "internal_write_text_file", err)
	}
	return r.Undefined(), nil
}

func opOpenFile(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	path, err := pathArg(r, args, "internal_open_file")
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, core.WrapError(core.KindFilesystem, "internal_open_file", err)
	}
	rid := fsState(a).Files.Push(f)
	return r.Int32(int32(rid)), nil
}

func opCreateFile(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	path, err := pathArg(r, args, "internal_create_file")
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, core.WrapError(core.KindFilesystem, "internal_create_file", err)
	}
	rid := fsState(a).Files.Push(f)
	return r.Int32(int32(rid)), nil
}

func opCopyFile(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	src, err := pathArg(r, args, "internal_copy_file")
	if err != nil {
		return nil, err
	}
	if len(args) < 2 || !isString(args[1]) {
		return nil, core.OpError(core.KindTypeMismatch, "internal_copy_file", "destination must be a string")
	}
	dst := args[1].String()
	in, err := os.Open(src)
	if err != nil {
		return nil, core.WrapError(core.KindFilesystem, "internal_copy_file", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return nil, core.WrapError(core.KindFilesystem, "internal_copy_file", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return nil, core.WrapError(core.KindFilesystem, "internal_copy_file", err)
	}
	return r.Undefined(), nil
}

func opMkDir(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	path, err := pathArg(r, args, "internal_mk_dir")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, core.WrapError(core.KindFilesystem, "internal_mk_dir", err)
	}
	return r.Undefined(), nil
}

const fsJS = `
(function (globalThis) {
  "use strict";
  const ns = globalThis.__andromeda__;
  const Andromeda = globalThis.Andromeda || (globalThis.Andromeda = {});
  Andromeda.readTextFile = (path) => ns.internal_read_text_file(path);
  Andromeda.writeTextFile = (path, data) => ns.internal_write_text_file(path, data);
  Andromeda.openFile = (path) => ns.internal_open_file(path);
  Andromeda.createFile = (path) => ns.internal_create_file(path);
  Andromeda.copyFile = (from, to) => ns.internal_copy_file(from, to);
  Andromeda.mkdir = (path) => ns.internal_mk_dir(path);
})(globalThis);
`
