package ops

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
	"github.com/andromeda-rt/andromeda/internal/netio"
)

// Net exposes socket and DNS ops. All I/O runs on background tasks; a
// script only ever sees promises.
func Net() ext.Extension {
	return ext.Extension{
		Name: "net",
		Ops: []ext.Op{
			{Name: "internal_net_connect", Fn: opNetConnect, Arity: 2},
			{Name: "internal_net_connect_tls", Fn: opNetConnectTLS, Arity: 2},
			{Name: "internal_net_listen", Fn: opNetListen, Arity: 2},
			{Name: "internal_net_accept", Fn: opNetAccept, Arity: 1},
			{Name: "internal_net_read", Fn: opNetRead, Arity: 2},
			{Name: "internal_net_write", Fn: opNetWrite, Arity: 2},
			{Name: "internal_net_close", Fn: opNetClose, Arity: 1},
			{Name: "internal_net_listen_udp", Fn: opNetListenUDP, Arity: 1},
			{Name: "internal_net_recv", Fn: opNetRecv, Arity: 1},
			{Name: "internal_net_send", Fn: opNetSend, Arity: 3},
			{Name: "internal_dns_resolve", Fn: opDNSResolve, Arity: 2},
		},
		InitStorage: func(s *core.Storage) {
			core.InitState(s, netio.NewState())
		},
	}
}

func netState(a *engine.Agent) *netio.State {
	return core.State[*netio.State](hostData(a).Storage())
}

// opNetConnect takes (network, address) where network is "tcp" or
// "unix" and resolves with a connection RID.
func opNetConnect(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	network, err := stringArg(args, 0, "internal_net_connect", "network")
	if err != nil {
		return nil, err
	}
	addr, err := stringArg(args, 1, "internal_net_connect", "address")
	if err != nil {
		return nil, err
	}
	if network != "tcp" && network != "unix" {
		return nil, core.OpError(core.KindTypeMismatch, "internal_net_connect", "unsupported network %q", network)
	}
	hd := hostData(a)
	st := netState(a)
	pc := r.NewPromise()
	hd.SpawnMacroTask(func(ctx context.Context, task core.TaskID) {
		conn, err := netio.DialStream(network, addr)
		if err != nil {
			hd.Post(core.RejectPromise{Promise: pc, Message: err.Error(), Task: task})
			return
		}
		hd.Post(core.RegisterResource{Promise: pc, Task: task, Insert: func() core.RID {
			return st.Conns.Push(conn)
		}})
	})
	return pc.Value(), nil
}

func opNetConnectTLS(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	addr, err := stringArg(args, 0, "internal_net_connect_tls", "address")
	if err != nil {
		return nil, err
	}
	serverName := ""
	if len(args) > 1 && isString(args[1]) {
		serverName = args[1].String()
	}
	hd := hostData(a)
	st := netState(a)
	pc := r.NewPromise()
	hd.SpawnMacroTask(func(ctx context.Context, task core.TaskID) {
		conn, err := netio.DialTLS(addr, serverName)
		if err != nil {
			hd.Post(core.RejectPromise{Promise: pc, Message: err.Error(), Task: task})
			return
		}
		hd.Post(core.RegisterResource{Promise: pc, Task: task, Insert: func() core.RID {
			return st.Conns.Push(conn)
		}})
	})
	return pc.Value(), nil
}

func opNetListen(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	network, err := stringArg(args, 0, "internal_net_listen", "network")
	if err != nil {
		return nil, err
	}
	addr, err := stringArg(args, 1, "internal_net_listen", "address")
	if err != nil {
		return nil, err
	}
	hd := hostData(a)
	st := netState(a)
	pc := r.NewPromise()
	hd.SpawnMacroTask(func(ctx context.Context, task core.TaskID) {
		ln, err := netio.Listen(network, addr)
		if err != nil {
			hd.Post(core.RejectPromise{Promise: pc, Message: err.Error(), Task: task})
			return
		}
		hd.Post(core.RegisterResource{Promise: pc, Task: task, Insert: func() core.RID {
			return st.Listeners.Push(ln)
		}})
	})
	return pc.Value(), nil
}

func opNetAccept(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) == 0 {
		return nil, core.OpError(core.KindTypeMismatch, "internal_net_accept", "missing listener rid")
	}
	st := netState(a)
	ln, err := st.Listeners.Get(core.RID(engine.ToUint32Clamped(args[0])), "internal_net_accept")
	if err != nil {
		return nil, err
	}
	hd := hostData(a)
	pc := r.NewPromise()
	hd.SpawnMacroTask(func(ctx context.Context, task core.TaskID) {
		conn, err := ln.Accept()
		if err != nil {
			hd.Post(core.RejectPromise{Promise: pc, Message: err.Error(), Task: task})
			return
		}
		hd.Post(core.RegisterResource{Promise: pc, Task: task, Insert: func() core.RID {
			return st.Conns.Push(conn)
		}})
	})
	return pc.Value(), nil
}

// opNetRead resolves with an ArrayBuffer of up to max bytes, or null at
// end of stream.
func opNetRead(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) == 0 {
		return nil, core.OpError(core.KindTypeMismatch, "internal_net_read", "missing connection rid")
	}
	st := netState(a)
	conn, err := st.Conns.Get(core.RID(engine.ToUint32Clamped(args[0])), "internal_net_read")
	if err != nil {
		return nil, err
	}
	max := netio.MaxReadChunk
	if len(args) > 1 && !isUndefinedOrNull(args[1]) {
		if n := int(args[1].ToInteger()); n > 0 && n < max {
			max = n
		}
	}
	hd := hostData(a)
	pc := r.NewPromise()
	hd.SpawnMacroTask(func(ctx context.Context, task core.TaskID) {
		data, err := netio.ReadChunk(conn, max)
		if err != nil {
			if errors.Is(err, io.EOF) {
				hd.Post(core.ResolveWithNull{Promise: pc, Task: task})
				return
			}
			hd.Post(core.RejectPromise{Promise: pc, Message: err.Error(), Task: task})
			return
		}
		hd.Post(core.ResolveWithBytes{Promise: pc, Value: data, Task: task})
	})
	return pc.Value(), nil
}

// opNetWrite resolves with the number of bytes written, as a string.
func opNetWrite(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) < 2 {
		return nil, core.OpError(core.KindTypeMismatch, "internal_net_write", "rid and data are required")
	}
	st := netState(a)
	conn, err := st.Conns.Get(core.RID(engine.ToUint32Clamped(args[0])), "internal_net_write")
	if err != nil {
		return nil, err
	}
	data, ok := engine.ExportBytes(r.VM(), args[1])
	if !ok {
		if !isString(args[1]) {
			return nil, core.OpError(core.KindTypeMismatch, "internal_net_write", "data must be a string or BufferSource")
		}
		data = []byte(args[1].String())
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	hd := hostData(a)
	pc := r.NewPromise()
	hd.SpawnMacroTask(func(ctx context.Context, task core.TaskID) {
		n, err := conn.Write(buf)
		if err != nil {
			hd.Post(core.RejectPromise{Promise: pc, Message: err.Error(), Task: task})
			return
		}
		hd.Post(core.ResolveWithString{Promise: pc, Value: strconv.Itoa(n), Task: task})
	})
	return pc.Value(), nil
}

// opNetClose is synchronous: closing unblocks any reader parked on the
// connection, whose promise then rejects.
func opNetClose(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) == 0 {
		return nil, core.OpError(core.KindTypeMismatch, "internal_net_close", "missing rid")
	}
	rid := core.RID(engine.ToUint32Clamped(args[0]))
	st := netState(a)
	if conn, ok := st.Conns.Remove(rid); ok {
		conn.Close()
		return r.Undefined(), nil
	}
	if ln, ok := st.Listeners.Remove(rid); ok {
		ln.Close()
		return r.Undefined(), nil
	}
	if pk, ok := st.Packets.Remove(rid); ok {
		pk.Close()
		return r.Undefined(), nil
	}
	return nil, core.ResourceNotFound(rid, "internal_net_close")
}

func opNetListenUDP(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	addr, err := stringArg(args, 0, "internal_net_listen_udp", "address")
	if err != nil {
		return nil, err
	}
	hd := hostData(a)
	st := netState(a)
	pc := r.NewPromise()
	hd.SpawnMacroTask(func(ctx context.Context, task core.TaskID) {
		pk, err := netio.ListenPacket(addr)
		if err != nil {
			hd.Post(core.RejectPromise{Promise: pc, Message: err.Error(), Task: task})
			return
		}
		hd.Post(core.RegisterResource{Promise: pc, Task: task, Insert: func() core.RID {
			return st.Packets.Push(pk)
		}})
	})
	return pc.Value(), nil
}

// opNetRecv resolves with one datagram as an ArrayBuffer.
func opNetRecv(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) == 0 {
		return nil, core.OpError(core.KindTypeMismatch, "internal_net_recv", "missing rid")
	}
	st := netState(a)
	pk, err := st.Packets.Get(core.RID(engine.ToUint32Clamped(args[0])), "internal_net_recv")
	if err != nil {
		return nil, err
	}
	hd := hostData(a)
	pc := r.NewPromise()
	hd.SpawnMacroTask(func(ctx context.Context, task core.TaskID) {
		buf := make([]byte, 65536)
		n, _, err := pk.ReadFrom(buf)
		if err != nil {
			hd.Post(core.RejectPromise{Promise: pc, Message: err.Error(), Task: task})
			return
		}
		hd.Post(core.ResolveWithBytes{Promise: pc, Value: buf[:n], Task: task})
	})
	return pc.Value(), nil
}

func opNetSend(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) < 3 {
		return nil, core.OpError(core.KindTypeMismatch, "internal_net_send", "rid, address and data are required")
	}
	st := netState(a)
	pk, err := st.Packets.Get(core.RID(engine.ToUint32Clamped(args[0])), "internal_net_send")
	if err != nil {
		return nil, err
	}
	addrStr, err := stringArg(args, 1, "internal_net_send", "address")
	if err != nil {
		return nil, err
	}
	dest, err := net.ResolveUDPAddr("udp", addrStr)
	if err != nil {
		return nil, core.WrapError(core.KindNetwork, "internal_net_send", err)
	}
	data, ok := engine.ExportBytes(r.VM(), args[2])
	if !ok {
		if !isString(args[2]) {
			return nil, core.OpError(core.KindTypeMismatch, "internal_net_send", "data must be a string or BufferSource")
		}
		data = []byte(args[2].String())
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	hd := hostData(a)
	pc := r.NewPromise()
	hd.SpawnMacroTask(func(ctx context.Context, task core.TaskID) {
		n, err := pk.WriteTo(buf, dest)
		if err != nil {
			hd.Post(core.RejectPromise{Promise: pc, Message: err.Error(), Task: task})
			return
		}
		hd.Post(core.ResolveWithString{Promise: pc, Value: strconv.Itoa(n), Task: task})
	})
	return pc.Value(), nil
}

func opDNSResolve(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	name, err := stringArg(args, 0, "internal_dns_resolve", "name")
	if err != nil {
		return nil, err
	}
	recordType := "A"
	if len(args) > 1 && isString(args[1]) {
		recordType = args[1].String()
	}
	hd := hostData(a)
	pc := r.NewPromise()
	hd.SpawnMacroTask(func(ctx context.Context, task core.TaskID) {
		answers, err := netio.Resolve(name, recordType)
		if err != nil {
			hd.Post(core.RejectPromise{Promise: pc, Message: err.Error(), Task: task})
			return
		}
		hd.Post(core.ResolveWithStrings{Promise: pc, Values: answers, Task: task})
	})
	return pc.Value(), nil
}
