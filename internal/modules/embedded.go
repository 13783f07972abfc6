package modules

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"runtime"

	"github.com/andromeda-rt/andromeda/internal/core"
)

// Embedded-binary section names. A compiled binary carries the script
// text under SectionBincode and its flags under SectionConfig.
const (
	SectionBincode = "ANDROMEDABINCODE"
	SectionConfig  = "ANDROMEDACONFIG"
)

// EmbeddedConfig is the JSON payload of the config section.
type EmbeddedConfig struct {
	Verbose  bool `json:"verbose"`
	NoStrict bool `json:"no_strict"`
}

// trailerMagic frames appended sections for executables whose format we
// cannot extend in place. Layout, repeated per section and scanned from
// the end of the file: payload, name, u32(len(name)), u64(len(payload)),
// magic.
var trailerMagic = []byte("ANDRSECT")

// ExtractSection returns the named section's bytes from the running
// executable, or ok=false when the binary carries none.
func ExtractSection(name string) ([]byte, bool, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, false, core.WrapError(core.KindConfig, "executable", err)
	}
	return ExtractSectionFrom(exe, name)
}

// ExtractSectionFrom reads a named section from path, trying the
// platform object format first and the appended trailer second.
func ExtractSectionFrom(path, name string) ([]byte, bool, error) {
	if data, ok := extractObjectSection(path, name); ok {
		return data, true, nil
	}
	data, ok, err := extractTrailerSection(path, name)
	if err != nil {
		return nil, false, err
	}
	return data, ok, nil
}

// ExtractConfig decodes the config section when present.
func ExtractConfig(path string) (*EmbeddedConfig, bool, error) {
	raw, ok, err := ExtractSectionFrom(path, SectionConfig)
	if err != nil || !ok {
		return nil, false, err
	}
	var cfg EmbeddedConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, false, core.OpError(core.KindConfig, SectionConfig, "decoding: %v", err)
	}
	return &cfg, true, nil
}

// extractObjectSection looks the section up via the executable format's
// own section table: ELF sections, Mach-O sections, PE sections.
func extractObjectSection(path, name string) ([]byte, bool) {
	if f, err := elf.Open(path); err == nil {
		defer f.Close()
		if s := f.Section(name); s != nil {
			if data, err := s.Data(); err == nil {
				return data, true
			}
		}
		return nil, false
	}
	if f, err := macho.Open(path); err == nil {
		defer f.Close()
		if s := f.Section(name); s != nil {
			if data, err := s.Data(); err == nil {
				return data, true
			}
		}
		return nil, false
	}
	if f, err := pe.Open(path); err == nil {
		defer f.Close()
		// PE section names cap at 8 bytes; compiled binaries fall back to
		// the trailer there.
		for _, s := range f.Sections {
			if s.Name == name {
				if data, err := s.Data(); err == nil {
					return data, true
				}
			}
		}
		return nil, false
	}
	return nil, false
}

func extractTrailerSection(path, name string) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, core.WrapError(core.KindModuleIO, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, core.WrapError(core.KindModuleIO, path, err)
	}

	end := info.Size()
	for {
		frame := make([]byte, 8+8+4) // magic + payload len + name len
		off := end - int64(len(frame))
		if off < 0 {
			return nil, false, nil
		}
		if _, err := f.ReadAt(frame, off); err != nil {
			return nil, false, nil
		}
		if !bytes.Equal(frame[12:], trailerMagic) {
			return nil, false, nil
		}
		payloadLen := int64(binary.BigEndian.Uint64(frame[4:12]))
		nameLen := int64(binary.BigEndian.Uint32(frame[:4]))
		bodyStart := off - nameLen - payloadLen
		if bodyStart < 0 {
			return nil, false, nil
		}
		sectName := make([]byte, nameLen)
		if _, err := f.ReadAt(sectName, bodyStart+payloadLen); err != nil {
			return nil, false, core.WrapError(core.KindModuleIO, path, err)
		}
		if string(sectName) == name {
			payload := make([]byte, payloadLen)
			if _, err := f.ReadAt(payload, bodyStart); err != nil {
				return nil, false, core.WrapError(core.KindModuleIO, path, err)
			}
			return payload, true, nil
		}
		end = bodyStart
	}
}

// EmbedSections copies the executable at src to dst and appends the
// script and config sections. On unix this is a two-pass write (bincode
// first, config second); on Windows a single combined pass.
func EmbedSections(src, dst string, script []byte, cfg EmbeddedConfig) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return core.WrapError(core.KindConfig, SectionConfig, err)
	}
	if err := copyExecutable(src, dst); err != nil {
		return err
	}

	if runtime.GOOS == "windows" {
		return appendSections(dst, [][2][]byte{
			{[]byte(SectionBincode), script},
			{[]byte(SectionConfig), cfgJSON},
		})
	}
	if err := appendSections(dst, [][2][]byte{{[]byte(SectionBincode), script}}); err != nil {
		return err
	}
	return appendSections(dst, [][2][]byte{{[]byte(SectionConfig), cfgJSON}})
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return core.WrapError(core.KindModuleIO, src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return core.WrapError(core.KindModuleIO, dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return core.WrapError(core.KindModuleIO, dst, err)
	}
	return nil
}

func appendSections(path string, sections [][2][]byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return core.WrapError(core.KindModuleIO, path, err)
	}
	defer f.Close()
	for _, s := range sections {
		name, payload := s[0], s[1]
		frame := make([]byte, 8+4)
		binary.BigEndian.PutUint32(frame[:4], uint32(len(name)))
		binary.BigEndian.PutUint64(frame[4:12], uint64(len(payload)))
		for _, chunk := range [][]byte{payload, name, frame, trailerMagic} {
			if _, err := f.Write(chunk); err != nil {
				return core.WrapError(core.KindModuleIO, path, err)
			}
		}
	}
	return nil
}
