package ops

import (
	"encoding/base64"
	"strings"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
)

// Web exposes the base64 codec ops and the btoa/atob globals.
func Web() ext.Extension {
	return ext.Extension{
		Name: "web",
		Ops: []ext.Op{
			{Name: "internal_btoa", Fn: opBtoa, Arity: 1},
			{Name: "internal_atob", Fn: opAtob, Arity: 1},
		},
		Scripts: []ext.Script{{Name: "ext:web/base64.js", Source: base64JS}},
	}
}

// opBtoa encodes a latin-1 string. Code points above 0xFF throw, per
// the forgiving-base64 contract.
func opBtoa(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) == 0 {
		return nil, core.OpError(core.KindTypeMismatch, "btoa", "1 argument required")
	}
	s := args[0].String()
	buf := make([]byte, 0, len(s))
	for _, cp := range s {
		if cp > 0xFF {
			return nil, core.OpError(core.KindEncoding, "btoa",
				"invalid character: code point %d is outside the latin-1 range", cp)
		}
		buf = append(buf, byte(cp))
	}
	return r.String(base64.StdEncoding.EncodeToString(buf)), nil
}

// opAtob decodes, tolerating missing padding and surrounding ASCII
// whitespace the way the web codec does.
func opAtob(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) == 0 {
		return nil, core.OpError(core.KindTypeMismatch, "atob", "1 argument required")
	}
	s := args[0].String()
	s = strings.Map(func(c rune) rune {
		switch c {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return c
	}, s)
	if n := len(s) % 4; n == 1 {
		return nil, core.OpError(core.KindEncoding, "atob", "invalid base64 length")
	} else if n > 0 {
		s += strings.Repeat("=", 4-n)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, core.OpError(core.KindEncoding, "atob", "invalid base64 input: %v", err)
	}
	// Each byte becomes one code point; bytes over 0x7F map to U+0080..U+00FF.
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return r.String(string(runes)), nil
}

const base64JS = `
(function (globalThis) {
  "use strict";
  const ns = globalThis.__andromeda__;
  Object.defineProperty(globalThis, "btoa", {
    value: (data) => ns.internal_btoa(String(data)),
    writable: true, configurable: true,
  });
  Object.defineProperty(globalThis, "atob", {
    value: (data) => ns.internal_atob(String(data)),
    writable: true, configurable: true,
  });
})(globalThis);
`
