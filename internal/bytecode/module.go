package bytecode

import "math"

// ConstKind tags a Constant's dynamic type (spec §3).
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstBool
	ConstNum
	ConstStr
)

// Constant is one pool entry: number, string, bool, or none (spec §3).
// Identical literals share one index (interning is the ConstPool's job).
type Constant struct {
	Kind ConstKind
	Num  float64
	Str  string
	Bool bool
}

// Function is an instruction vector, parameter count, number of registers
// used, optional name, and optional debug span map (spec §3).
type Function struct {
	Name       string
	NumParams  int
	NumRegs    int
	Code       []Instruction
	DebugSpans []Span // parallel to Code; nil if debug info was not requested
}

// Span records a source location for one instruction, used only for error
// reporting; compilation never depends on its contents.
type Span struct {
	Line, Col int
}

// FieldType tags the declared type of an agent memory field or tool
// parameter (spec §3). The language has no general type inference (spec §1
// Non-goals); these tags are only used for documentation, default-value
// materialization, and descriptor introspection.
type FieldType uint8

const (
	TypeAny FieldType = iota
	TypeNone
	TypeBool
	TypeNum
	TypeStr
	TypeList
	TypeMap
	TypeAgent
)

// MemoryField is one agent memory slot: a name, declared type, and a default
// value resolved to a constant pool index (spec §3).
type MemoryField struct {
	Name         string
	Type         FieldType
	DefaultConst int
}

// AgentDescriptor describes an agent type: its name, model, system prompt
// template, memory layout, and method table (spec §3).
type AgentDescriptor struct {
	Name         string
	Model        string
	SystemPrompt string // passed to the host verbatim at Exec time; {…} is not interpolated
	Memory       []MemoryField
	Methods      map[string]int // method name -> Functions index
	MethodOrder  []string       // declaration order, for deterministic descriptor dumps
}

// Param is one tool parameter: name, declared type, and optional default
// value resolved to a constant pool index (-1 if no default).
type Param struct {
	Name         string
	Type         FieldType
	DefaultConst int
}

// ToolDescriptor describes an externally implemented operation: its name,
// optional description, ordered parameter list, and declared return type
// (spec §3).
type ToolDescriptor struct {
	Name        string
	Description string
	Params      []Param
	Returns     FieldType
}

// Module is the compiled unit: constants pool, functions, agent
// descriptors, tool descriptors, and the entry function index (spec §3).
type Module struct {
	Constants []Constant
	Functions []Function
	Agents    []AgentDescriptor
	Tools     []ToolDescriptor
	Entry     int
}

// ConstPool interns constants during compilation: numbers by bit pattern,
// strings by content, booleans/none as singletons (spec §4.2). The pool is
// append-only and sealed once compilation finishes (spec §3 invariants).
type ConstPool struct {
	consts  []Constant
	nums    map[uint64]int
	strs    map[string]int
	boolIdx [2]int
	noneIdx int
	hasBool [2]bool
	hasNone bool
}

// NewConstPool constructs an empty pool.
func NewConstPool() *ConstPool {
	return &ConstPool{
		nums:    make(map[uint64]int),
		strs:    make(map[string]int),
		noneIdx: -1,
		boolIdx: [2]int{-1, -1},
	}
}

// Num interns a number constant by exact bit pattern.
func (p *ConstPool) Num(n float64) int {
	bits := math.Float64bits(n)
	if idx, ok := p.nums[bits]; ok {
		return idx
	}
	idx := len(p.consts)
	p.consts = append(p.consts, Constant{Kind: ConstNum, Num: n})
	p.nums[bits] = idx
	return idx
}

// Str interns a string constant by content.
func (p *ConstPool) Str(s string) int {
	if idx, ok := p.strs[s]; ok {
		return idx
	}
	idx := len(p.consts)
	p.consts = append(p.consts, Constant{Kind: ConstStr, Str: s})
	p.strs[s] = idx
	return idx
}

// Bool interns the single true or false constant.
func (p *ConstPool) Bool(b bool) int {
	i := 0
	if b {
		i = 1
	}
	if p.hasBool[i] {
		return p.boolIdx[i]
	}
	idx := len(p.consts)
	p.consts = append(p.consts, Constant{Kind: ConstBool, Bool: b})
	p.boolIdx[i] = idx
	p.hasBool[i] = true
	return idx
}

// None interns the single none constant.
func (p *ConstPool) None() int {
	if p.hasNone {
		return p.noneIdx
	}
	idx := len(p.consts)
	p.consts = append(p.consts, Constant{Kind: ConstNone})
	p.noneIdx = idx
	p.hasNone = true
	return idx
}

// Seal returns the finished, append-only constant slice (spec §3: "the pool
// is append-only during compilation and sealed at module finalization").
func (p *ConstPool) Seal() []Constant {
	out := make([]Constant, len(p.consts))
	copy(out, p.consts)
	return out
}
