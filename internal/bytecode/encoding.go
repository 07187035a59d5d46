package bytecode

import (
	"bytes"
	"compress/gzip"
	"golang.org/x/crypto/sha3"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Magic identifies an Agentus bytecode module on disk (spec §6).
var Magic = [4]byte{'A', 'G', 'T', 'B'}

// FormatVersion and OpcodeTableVersion are bumped independently: the former
// when the on-disk struct layout changes (append-only, per spec §6), the
// latter when an opcode's meaning or numbering changes.
const (
	FormatVersion      uint8 = 1
	OpcodeTableVersion uint8 = 1
)

// Hash returns the content hash of m's encoded form, used to key compiled-
// module caches and as the on-disk bundle directory name — grounded in the
// teacher's bundle.UnbundleToDir, which keys stored programs by
// sha3.Sum256 of their bundled bytes.
func (m Module) Hash() ([32]byte, error) {
	b, err := Encode(m)
	if err != nil {
		return [32]byte{}, err
	}
	return sha3.Sum256(b), nil
}

// Encode serializes m to its on-disk wire format (spec §6): a header
// followed by uvarint-length-framed tagged records for the constants pool,
// function table, agent table, tool table, and the entry function index.
// Framing follows the teacher's stream writer idiom in bundle.Bundle and
// the deserializer's rVarInt/rString reader in litecode/vm/vm.go.
func Encode(m Module) ([]byte, error) {
	var b []byte
	b = append(b, Magic[:]...)
	b = append(b, FormatVersion, OpcodeTableVersion)

	b = binary.AppendUvarint(b, uint64(len(m.Constants)))
	for _, c := range m.Constants {
		b = appendConstant(b, c)
	}

	b = binary.AppendUvarint(b, uint64(len(m.Functions)))
	for _, f := range m.Functions {
		b = appendFunction(b, f)
	}

	b = binary.AppendUvarint(b, uint64(len(m.Agents)))
	for _, a := range m.Agents {
		b = appendAgent(b, a)
	}

	b = binary.AppendUvarint(b, uint64(len(m.Tools)))
	for _, t := range m.Tools {
		b = appendTool(b, t)
	}

	b = binary.AppendUvarint(b, uint64(m.Entry))
	return b, nil
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

func appendConstant(b []byte, c Constant) []byte {
	b = append(b, byte(c.Kind))
	switch c.Kind {
	case ConstNum:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(c.Num))
		b = append(b, buf[:]...)
	case ConstStr:
		b = appendString(b, c.Str)
	case ConstBool:
		if c.Bool {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
	case ConstNone:
		// no payload
	}
	return b
}

func appendInstruction(b []byte, i Instruction) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], Pack(i))
	return append(b, buf[:]...)
}

func appendFunction(b []byte, f Function) []byte {
	b = appendString(b, f.Name)
	b = binary.AppendUvarint(b, uint64(f.NumParams))
	b = binary.AppendUvarint(b, uint64(f.NumRegs))
	b = binary.AppendUvarint(b, uint64(len(f.Code)))
	for _, inst := range f.Code {
		b = appendInstruction(b, inst)
	}
	return b
}

func appendField(b []byte, f MemoryField) []byte {
	b = appendString(b, f.Name)
	b = append(b, byte(f.Type))
	b = binary.AppendUvarint(b, uint64(f.DefaultConst))
	return b
}

func appendAgent(b []byte, a AgentDescriptor) []byte {
	b = appendString(b, a.Name)
	b = appendString(b, a.Model)
	b = appendString(b, a.SystemPrompt)

	b = binary.AppendUvarint(b, uint64(len(a.Memory)))
	for _, f := range a.Memory {
		b = appendField(b, f)
	}

	b = binary.AppendUvarint(b, uint64(len(a.MethodOrder)))
	for _, name := range a.MethodOrder {
		b = appendString(b, name)
		b = binary.AppendUvarint(b, uint64(a.Methods[name]))
	}
	return b
}

func appendParam(b []byte, p Param) []byte {
	b = appendString(b, p.Name)
	b = append(b, byte(p.Type))
	b = binary.AppendVarint(b, int64(p.DefaultConst))
	return b
}

func appendTool(b []byte, t ToolDescriptor) []byte {
	b = appendString(b, t.Name)
	b = appendString(b, t.Description)
	b = binary.AppendUvarint(b, uint64(len(t.Params)))
	for _, p := range t.Params {
		b = appendParam(b, p)
	}
	b = append(b, byte(t.Returns))
	return b
}

// decoder mirrors the teacher's stream type (litecode/vm/vm.go), a small
// cursor over the byte slice with read helpers per field kind.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) byte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if d.pos+n > len(d.data) {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.data[d.pos:])
	if n <= 0 {
		return 0, io.ErrUnexpectedEOF
	}
	d.pos += n
	return v, nil
}

func (d *decoder) varint() (int64, error) {
	v, n := binary.Varint(d.data[d.pos:])
	if n <= 0 {
		return 0, io.ErrUnexpectedEOF
	}
	d.pos += n
	return v, nil
}

func (d *decoder) str() (string, error) {
	l, err := d.uvarint()
	if err != nil {
		return "", err
	}
	b, err := d.bytes(int(l))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) instruction() (Instruction, error) {
	b, err := d.bytes(4)
	if err != nil {
		return Instruction{}, err
	}
	return Unpack(binary.LittleEndian.Uint32(b)), nil
}

// Decode parses the on-disk wire format produced by Encode.
func Decode(b []byte) (Module, error) {
	d := &decoder{data: b}

	magic, err := d.bytes(4)
	if err != nil {
		return Module{}, fmt.Errorf("reading magic: %w", err)
	}
	if !bytes.Equal(magic, Magic[:]) {
		return Module{}, errors.New("not an agentus bytecode module")
	}

	formatVersion, err := d.byte()
	if err != nil {
		return Module{}, err
	}
	if formatVersion > FormatVersion {
		return Module{}, fmt.Errorf("module format version %d is newer than supported version %d", formatVersion, FormatVersion)
	}

	if _, err := d.byte(); err != nil { // opcode table version, informational
		return Module{}, err
	}

	var m Module

	nconsts, err := d.uvarint()
	if err != nil {
		return Module{}, err
	}
	m.Constants = make([]Constant, nconsts)
	for i := range m.Constants {
		c, err := decodeConstant(d)
		if err != nil {
			return Module{}, fmt.Errorf("constant %d: %w", i, err)
		}
		m.Constants[i] = c
	}

	nfuncs, err := d.uvarint()
	if err != nil {
		return Module{}, err
	}
	m.Functions = make([]Function, nfuncs)
	for i := range m.Functions {
		f, err := decodeFunction(d)
		if err != nil {
			return Module{}, fmt.Errorf("function %d: %w", i, err)
		}
		m.Functions[i] = f
	}

	nagents, err := d.uvarint()
	if err != nil {
		return Module{}, err
	}
	m.Agents = make([]AgentDescriptor, nagents)
	for i := range m.Agents {
		a, err := decodeAgent(d)
		if err != nil {
			return Module{}, fmt.Errorf("agent %d: %w", i, err)
		}
		m.Agents[i] = a
	}

	ntools, err := d.uvarint()
	if err != nil {
		return Module{}, err
	}
	m.Tools = make([]ToolDescriptor, ntools)
	for i := range m.Tools {
		t, err := decodeTool(d)
		if err != nil {
			return Module{}, fmt.Errorf("tool %d: %w", i, err)
		}
		m.Tools[i] = t
	}

	entry, err := d.uvarint()
	if err != nil {
		return Module{}, err
	}
	m.Entry = int(entry)

	return m, nil
}

func decodeConstant(d *decoder) (Constant, error) {
	kb, err := d.byte()
	if err != nil {
		return Constant{}, err
	}
	c := Constant{Kind: ConstKind(kb)}
	switch c.Kind {
	case ConstNum:
		b, err := d.bytes(8)
		if err != nil {
			return Constant{}, err
		}
		c.Num = math.Float64frombits(binary.LittleEndian.Uint64(b))
	case ConstStr:
		s, err := d.str()
		if err != nil {
			return Constant{}, err
		}
		c.Str = s
	case ConstBool:
		b, err := d.byte()
		if err != nil {
			return Constant{}, err
		}
		c.Bool = b != 0
	case ConstNone:
	default:
		return Constant{}, fmt.Errorf("unknown constant kind %d", kb)
	}
	return c, nil
}

func decodeFunction(d *decoder) (Function, error) {
	var f Function
	var err error
	if f.Name, err = d.str(); err != nil {
		return f, err
	}
	np, err := d.uvarint()
	if err != nil {
		return f, err
	}
	f.NumParams = int(np)

	nr, err := d.uvarint()
	if err != nil {
		return f, err
	}
	f.NumRegs = int(nr)

	nc, err := d.uvarint()
	if err != nil {
		return f, err
	}
	f.Code = make([]Instruction, nc)
	for i := range f.Code {
		inst, err := d.instruction()
		if err != nil {
			return f, err
		}
		f.Code[i] = inst
	}
	return f, nil
}

func decodeField(d *decoder) (MemoryField, error) {
	var f MemoryField
	var err error
	if f.Name, err = d.str(); err != nil {
		return f, err
	}
	tb, err := d.byte()
	if err != nil {
		return f, err
	}
	f.Type = FieldType(tb)

	dc, err := d.uvarint()
	if err != nil {
		return f, err
	}
	f.DefaultConst = int(dc)
	return f, nil
}

func decodeAgent(d *decoder) (AgentDescriptor, error) {
	var a AgentDescriptor
	var err error
	if a.Name, err = d.str(); err != nil {
		return a, err
	}
	if a.Model, err = d.str(); err != nil {
		return a, err
	}
	if a.SystemPrompt, err = d.str(); err != nil {
		return a, err
	}

	nf, err := d.uvarint()
	if err != nil {
		return a, err
	}
	a.Memory = make([]MemoryField, nf)
	for i := range a.Memory {
		f, err := decodeField(d)
		if err != nil {
			return a, err
		}
		a.Memory[i] = f
	}

	nm, err := d.uvarint()
	if err != nil {
		return a, err
	}
	a.Methods = make(map[string]int, nm)
	a.MethodOrder = make([]string, nm)
	for i := range a.MethodOrder {
		name, err := d.str()
		if err != nil {
			return a, err
		}
		idx, err := d.uvarint()
		if err != nil {
			return a, err
		}
		a.MethodOrder[i] = name
		a.Methods[name] = int(idx)
	}
	return a, nil
}

func decodeParam(d *decoder) (Param, error) {
	var p Param
	var err error
	if p.Name, err = d.str(); err != nil {
		return p, err
	}
	tb, err := d.byte()
	if err != nil {
		return p, err
	}
	p.Type = FieldType(tb)

	dc, err := d.varint()
	if err != nil {
		return p, err
	}
	p.DefaultConst = int(dc)
	return p, nil
}

func decodeTool(d *decoder) (ToolDescriptor, error) {
	var t ToolDescriptor
	var err error
	if t.Name, err = d.str(); err != nil {
		return t, err
	}
	if t.Description, err = d.str(); err != nil {
		return t, err
	}

	np, err := d.uvarint()
	if err != nil {
		return t, err
	}
	t.Params = make([]Param, np)
	for i := range t.Params {
		p, err := decodeParam(d)
		if err != nil {
			return t, err
		}
		t.Params[i] = p
	}

	rb, err := d.byte()
	if err != nil {
		return t, err
	}
	t.Returns = FieldType(rb)
	return t, nil
}

// WriteCompressed gzip-compresses m's encoded form, following the teacher's
// per-file gzip framing in exec/bundle.go for on-disk program storage.
func WriteCompressed(w io.Writer, m Module) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(b); err != nil {
		return err
	}
	return gz.Close()
}

// ReadCompressed decodes a module previously written with WriteCompressed.
func ReadCompressed(r io.Reader) (Module, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return Module{}, err
	}
	defer gz.Close()

	b, err := io.ReadAll(gz)
	if err != nil {
		return Module{}, err
	}
	return Decode(b)
}
