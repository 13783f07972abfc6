package ops

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"strings"

	"github.com/google/uuid"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
)

// CryptoKey is a handle stored in the key table. Exactly one of the
// fields below the algorithm tag is populated.
type CryptoKey struct {
	Algorithm string // "HMAC", "ECDSA", "AES-GCM"
	Hash      string // for HMAC
	Secret    []byte // HMAC and AES-GCM material
	ECDSAPriv *ecdsa.PrivateKey
	ECDSAPub  *ecdsa.PublicKey
	Public    bool
}

// CryptoState holds generated and imported keys by RID.
type CryptoState struct {
	Keys *core.ResourceTable[*CryptoKey]
}

// Crypto exposes getRandomValues, randomUUID, and the SubtleCrypto ops.
func Crypto() ext.Extension {
	return ext.Extension{
		Name: "crypto",
		Ops: []ext.Op{
			{Name: "internal_crypto_getRandomValues", Fn: opGetRandomValues, Arity: 1},
			{Name: "internal_crypto_randomUUID", Fn: opRandomUUID, Arity: 0},
			{Name: "internal_subtle_digest", Fn: opSubtleDigest, Arity: 2},
			{Name: "internal_subtle_generateKey", Fn: opSubtleGenerateKey, Arity: 3},
			{Name: "internal_subtle_sign", Fn: opSubtleSign, Arity: 3},
			{Name: "internal_subtle_verify", Fn: opSubtleVerify, Arity: 4},
			{Name: "internal_subtle_encrypt", Fn: opSubtleEncrypt, Arity: 3},
			{Name: "internal_subtle_decrypt", Fn: opSubtleDecrypt, Arity: 3},
		},
		Scripts: []ext.Script{{Name: "ext:crypto/crypto.js", Source: cryptoJS}},
		InitStorage: func(s *core.Storage) {
			core.InitState(s, &CryptoState{Keys: core.NewResourceTable[*CryptoKey]()})
		},
	}
}

func cryptoState(a *engine.Agent) *CryptoState {
	return core.State[*CryptoState](hostData(a).Storage())
}

func hashByName(name string) (func() hash.Hash, error) {
	switch strings.ToUpper(name) {
	case "SHA-1":
		return sha1.New, nil
	case "SHA-256":
		return sha256.New, nil
	case "SHA-384":
		return sha512.New384, nil
	case "SHA-512":
		return sha512.New, nil
	}
	return nil, core.OpError(core.KindTypeMismatch, "subtle", "unsupported hash algorithm %q", name)
}

// opGetRandomValues fills the caller's typed array in place and returns
// it, matching the Web Crypto contract.
func opGetRandomValues(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) == 0 {
		return nil, core.OpError(core.KindTypeMismatch, "getRandomValues", "1 argument required")
	}
	buf, ok := engine.ExportBytes(r.VM(), args[0])
	if !ok {
		return nil, core.OpError(core.KindTypeMismatch, "getRandomValues", "argument must be an integer typed array")
	}
	if len(buf) > 65536 {
		return nil, core.OpError(core.KindMemory, "getRandomValues", "requested %d bytes, limit is 65536", len(buf))
	}
	if _, err := rand.Read(buf); err != nil {
		return nil, core.WrapError(core.KindInternal, "getRandomValues", err)
	}
	return args[0], nil
}

func opRandomUUID(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, core.WrapError(core.KindInternal, "randomUUID", err)
	}
	return r.String(id.String()), nil
}

func opSubtleDigest(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	algo, err := stringArg(args, 0, "subtle.digest", "algorithm")
	if err != nil {
		return nil, err
	}
	newHash, err := hashByName(algo)
	if err != nil {
		return nil, err
	}
	data, ok := engine.ExportBytes(r.VM(), args[1])
	if !ok {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.digest", "data must be a BufferSource")
	}
	h := newHash()
	h.Write(data)
	return r.ArrayBuffer(h.Sum(nil)), nil
}

// opSubtleGenerateKey takes (algorithmName, hashOrCurve, length) and
// returns a key RID.
func opSubtleGenerateKey(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	algo, err := stringArg(args, 0, "subtle.generateKey", "algorithm")
	if err != nil {
		return nil, err
	}
	st := cryptoState(a)
	switch strings.ToUpper(algo) {
	case "HMAC":
		hashName := "SHA-256"
		if len(args) > 1 && isString(args[1]) {
			hashName = args[1].String()
		}
		if _, err := hashByName(hashName); err != nil {
			return nil, err
		}
		secret := make([]byte, 64)
		if _, err := rand.Read(secret); err != nil {
			return nil, core.WrapError(core.KindInternal, "subtle.generateKey", err)
		}
		rid := st.Keys.Push(&CryptoKey{Algorithm: "HMAC", Hash: hashName, Secret: secret})
		return r.Int32(int32(rid)), nil
	case "ECDSA":
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, core.WrapError(core.KindInternal, "subtle.generateKey", err)
		}
		rid := st.Keys.Push(&CryptoKey{Algorithm: "ECDSA", ECDSAPriv: priv, ECDSAPub: &priv.PublicKey})
		return r.Int32(int32(rid)), nil
	case "AES-GCM":
		bits := int64(256)
		if len(args) > 2 && !isUndefinedOrNull(args[2]) {
			bits = args[2].ToInteger()
		}
		if bits != 128 && bits != 192 && bits != 256 {
			return nil, core.OpError(core.KindTypeMismatch, "subtle.generateKey", "AES key length must be 128, 192 or 256")
		}
		secret := make([]byte, bits/8)
		if _, err := rand.Read(secret); err != nil {
			return nil, core.WrapError(core.KindInternal, "subtle.generateKey", err)
		}
		rid := st.Keys.Push(&CryptoKey{Algorithm: "AES-GCM", Secret: secret})
		return r.Int32(int32(rid)), nil
	}
	return nil, core.OpError(core.KindTypeMismatch, "subtle.generateKey", "unsupported algorithm %q", algo)
}

func keyArg(a *engine.Agent, args []engine.Value, n int, op string) (*CryptoKey, error) {
	if len(args) <= n {
		return nil, core.OpError(core.KindTypeMismatch, op, "missing key argument")
	}
	rid := core.RID(engine.ToUint32Clamped(args[n]))
	return cryptoState(a).Keys.Get(rid, op)
}

func opSubtleSign(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	key, err := keyArg(a, args, 0, "subtle.sign")
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.sign", "missing data argument")
	}
	data, ok := engine.ExportBytes(r.VM(), args[1])
	if !ok {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.sign", "data must be a BufferSource")
	}
	switch key.Algorithm {
	case "HMAC":
		newHash, err := hashByName(key.Hash)
		if err != nil {
			return nil, err
		}
		mac := hmac.New(newHash, key.Secret)
		mac.Write(data)
		return r.ArrayBuffer(mac.Sum(nil)), nil
	case "ECDSA":
		if key.ECDSAPriv == nil {
			return nil, core.OpError(core.KindTypeMismatch, "subtle.sign", "key is not a private key")
		}
		digest := sha256.Sum256(data)
		sig, err := ecdsa.SignASN1(rand.Reader, key.ECDSAPriv, digest[:])
		if err != nil {
			return nil, core.WrapError(core.KindInternal, "subtle.sign", err)
		}
		return r.ArrayBuffer(sig), nil
	}
	return nil, core.OpError(core.KindTypeMismatch, "subtle.sign", "key algorithm %q cannot sign", key.Algorithm)
}

func opSubtleVerify(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	key, err := keyArg(a, args, 0, "subtle.verify")
	if err != nil {
		return nil, err
	}
	if len(args) < 3 {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.verify", "signature and data are required")
	}
	sig, ok := engine.ExportBytes(r.VM(), args[1])
	if !ok {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.verify", "signature must be a BufferSource")
	}
	data, ok := engine.ExportBytes(r.VM(), args[2])
	if !ok {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.verify", "data must be a BufferSource")
	}
	switch key.Algorithm {
	case "HMAC":
		newHash, err := hashByName(key.Hash)
		if err != nil {
			return nil, err
		}
		mac := hmac.New(newHash, key.Secret)
		mac.Write(data)
		return r.Boolean(hmac.Equal(mac.Sum(nil), sig)), nil
	case "ECDSA":
		pub := key.ECDSAPub
		if pub == nil && key.ECDSAPriv != nil {
			pub = &key.ECDSAPriv.PublicKey
		}
		if pub == nil {
			return nil, core.OpError(core.KindTypeMismatch, "subtle.verify", "key has no public part")
		}
		digest := sha256.Sum256(data)
		return r.Boolean(ecdsa.VerifyASN1(pub, digest[:], sig)), nil
	}
	return nil, core.OpError(core.KindTypeMismatch, "subtle.verify", "key algorithm %q cannot verify", key.Algorithm)
}

func gcmFor(key *CryptoKey, op string) (cipher.AEAD, error) {
	if key.Algorithm != "AES-GCM" {
		return nil, core.OpError(core.KindTypeMismatch, op, "key algorithm %q is not AES-GCM", key.Algorithm)
	}
	block, err := aes.NewCipher(key.Secret)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, op, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, op, err)
	}
	return gcm, nil
}

// opSubtleEncrypt takes (key, iv, plaintext) and returns ciphertext
// with the GCM tag appended.
func opSubtleEncrypt(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	key, err := keyArg(a, args, 0, "subtle.encrypt")
	if err != nil {
		return nil, err
	}
	gcm, err := gcmFor(key, "subtle.encrypt")
	if err != nil {
		return nil, err
	}
	if len(args) < 3 {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.encrypt", "iv and data are required")
	}
	iv, ok := engine.ExportBytes(r.VM(), args[1])
	if !ok || len(iv) != gcm.NonceSize() {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.encrypt", "iv must be a %d-byte BufferSource", gcm.NonceSize())
	}
	plain, ok := engine.ExportBytes(r.VM(), args[2])
	if !ok {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.encrypt", "data must be a BufferSource")
	}
	return r.ArrayBuffer(gcm.Seal(nil, iv, plain, nil)), nil
}

func opSubtleDecrypt(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	key, err := keyArg(a, args, 0, "subtle.decrypt")
	if err != nil {
		return nil, err
	}
	gcm, err := gcmFor(key, "subtle.decrypt")
	if err != nil {
		return nil, err
	}
	if len(args) < 3 {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.decrypt", "iv and data are required")
	}
	iv, ok := engine.ExportBytes(r.VM(), args[1])
	if !ok || len(iv) != gcm.NonceSize() {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.decrypt", "iv must be a %d-byte BufferSource", gcm.NonceSize())
	}
	sealed, ok := engine.ExportBytes(r.VM(), args[2])
	if !ok {
		return nil, core.OpError(core.KindTypeMismatch, "subtle.decrypt", "data must be a BufferSource")
	}
	plain, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, core.OpError(core.KindEncoding, "subtle.decrypt", "decryption failed")
	}
	return r.ArrayBuffer(plain), nil
}

const cryptoJS = `
(function (globalThis) {
  "use strict";
  const ns = globalThis.__andromeda__;

  const subtle = {
    digest(algorithm, data) {
      const name = typeof algorithm === "string" ? algorithm : algorithm.name;
      return Promise.resolve(ns.internal_subtle_digest(name, data));
    },
    generateKey(algorithm, extractable, usages) {
      const name = typeof algorithm === "string" ? algorithm : algorithm.name;
      const hashOrCurve = algorithm && algorithm.hash
        ? (typeof algorithm.hash === "string" ? algorithm.hash : algorithm.hash.name)
        : (algorithm && algorithm.namedCurve) || undefined;
      const length = algorithm && algorithm.length;
      const rid = ns.internal_subtle_generateKey(name, hashOrCurve, length);
      return Promise.resolve({ __rid: rid, algorithm: { name }, extractable: !!extractable, usages: usages || [] });
    },
    sign(algorithm, key, data) {
      return Promise.resolve(ns.internal_subtle_sign(key.__rid, data));
    },
    verify(algorithm, key, signature, data) {
      return Promise.resolve(ns.internal_subtle_verify(key.__rid, signature, data));
    },
    encrypt(algorithm, key, data) {
      return Promise.resolve(ns.internal_subtle_encrypt(key.__rid, algorithm.iv, data));
    },
    decrypt(algorithm, key, data) {
      return Promise.resolve(ns.internal_subtle_decrypt(key.__rid, algorithm.iv, data));
    },
  };

  const crypto = {
    getRandomValues(array) { return ns.internal_crypto_getRandomValues(array); },
    randomUUID() { return ns.internal_crypto_randomUUID(); },
    subtle,
  };

  Object.defineProperty(globalThis, "crypto", {
    value: crypto, writable: true, configurable: true,
  });
})(globalThis);
`
