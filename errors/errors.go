package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the binding the error occurred
type Phase string

const (
	PhaseAcquire Phase = "acquire" // native handle acquisition
	PhaseBind    Phase = "bind"    // symbol resolution
	PhaseParse   Phase = "parse"   // text to native value
	PhaseFormat  Phase = "format"  // native value to text
	PhaseNative  Phase = "native"  // error reported by the native library
	PhaseMemory  Phase = "memory"  // allocator instrumentation
	PhasePost    Phase = "post"    // I/O service tasks
	PhaseConfig  Phase = "config"  // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindAllocation        Kind = "allocation"
	KindInvalidFormat     Kind = "invalid_format"
	KindNativeOperation   Kind = "native_operation"
	KindMemoryLeak        Kind = "memory_leak"
	KindUntrackedFree     Kind = "untracked_free"
	KindMissingSymbol     Kind = "missing_symbol"
	KindReleased          Kind = "released"
	KindAlreadyRegistered Kind = "already_registered"
	KindNotRegistered     Kind = "not_registered"
	KindClosed            Kind = "closed"
	KindInvalidInput      Kind = "invalid_input"
	KindTaskPanic         Kind = "task_panic"
	KindNotFound          Kind = "not_found"
)

// Sentinels for errors.Is. Matching is on Phase and Kind only.
var (
	ErrNativeAllocation   = &Error{Phase: PhaseAcquire, Kind: KindAllocation}
	ErrInvalidValueFormat = &Error{Phase: PhaseParse, Kind: KindInvalidFormat}
	ErrNativeOperation    = &Error{Phase: PhaseNative, Kind: KindNativeOperation}
	ErrMemoryLeak         = &Error{Phase: PhaseMemory, Kind: KindMemoryLeak}
	ErrUntrackedFree      = &Error{Phase: PhaseMemory, Kind: KindUntrackedFree}
)

// Error is the structured error type used throughout the binding
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	TypeName string
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.TypeName != "" {
		b.WriteString(" (")
		b.WriteString(e.TypeName)
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// TypeName sets the native type name
func (b *Builder) TypeName(name string) *Builder {
	b.err.TypeName = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// NativeError is a snapshot of a native error context.
type NativeError struct {
	Category    string
	Description string
	File        string
	Code        int
	Line        int
}

func (e *NativeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Category)
	b.WriteByte(':')
	fmt.Fprintf(&b, "%d", e.Code)
	if e.Description != "" {
		b.WriteByte(' ')
		b.WriteString(e.Description)
	}
	if e.File != "" {
		fmt.Fprintf(&b, " at %s:%d", e.File, e.Line)
	}
	return b.String()
}

// NativeAllocation reports that the native library could not produce a handle.
func NativeAllocation(what string) *Error {
	return &Error{
		Phase:  PhaseAcquire,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("native library could not allocate %s", what),
	}
}

// InvalidValueFormat reports text rejected by a native parser. The text is kept verbatim.
func InvalidValueFormat(typeName, text string) *Error {
	return &Error{
		Phase:    PhaseParse,
		Kind:     KindInvalidFormat,
		TypeName: typeName,
		Value:    text,
		Detail:   fmt.Sprintf("invalid value %q", text),
	}
}

// NativeOperation wraps a native error context snapshot.
func NativeOperation(snapshot *NativeError) *Error {
	return &Error{
		Phase:  PhaseNative,
		Kind:   KindNativeOperation,
		Detail: snapshot.Category,
		Value:  snapshot,
		Cause:  snapshot,
	}
}

// MemoryLeak reports blocks that survived a unit of work. report is attached as Value.
func MemoryLeak(count int, report any) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindMemoryLeak,
		Value:  report,
		Detail: fmt.Sprintf("%d block(s) leaked", count),
	}
}

// UntrackedFree reports a release of an address the ledger never saw.
func UntrackedFree(op string, ptr uint32) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindUntrackedFree,
		Value:  ptr,
		Detail: fmt.Sprintf("%s of untracked pointer 0x%08x", op, ptr),
	}
}

// Released reports use of a handle after its explicit release.
func Released(typeName string) *Error {
	return &Error{
		Phase:    PhaseNative,
		Kind:     KindReleased,
		TypeName: typeName,
		Detail:   "handle already released",
	}
}

// AlreadyRegistered reports a second installation of allocator hooks.
func AlreadyRegistered(what string) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindAlreadyRegistered,
		Detail: fmt.Sprintf("%s already registered", what),
	}
}

// NotRegistered reports removal of hooks that were never installed.
func NotRegistered(what string) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindNotRegistered,
		Detail: fmt.Sprintf("%s not registered", what),
	}
}

// Closed reports use of a closed object.
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// TaskPanic wraps a value recovered from a posted task.
func TaskPanic(id uint64, recovered any) *Error {
	return &Error{
		Phase:  PhasePost,
		Kind:   KindTaskPanic,
		Value:  recovered,
		Detail: fmt.Sprintf("task %d panicked: %v", id, recovered),
	}
}

// MissingSymbol represents a single unresolved native entry point
type MissingSymbol struct {
	TypeName string // e.g., "IPv4Address"
	Symbol   string // e.g., "freelan_IPv4Address_from_string"
}

// MissingSymbolsError is returned when the value registry cannot bind a type's entry points
type MissingSymbolsError struct {
	Symbols []MissingSymbol
}

func (e *MissingSymbolsError) Error() string {
	if len(e.Symbols) == 0 {
		return "[bind] missing_symbol: no symbols specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d native symbol(s):\n", len(e.Symbols)))

	byType := make(map[string][]string)
	var typeOrder []string
	for _, s := range e.Symbols {
		if _, exists := byType[s.TypeName]; !exists {
			typeOrder = append(typeOrder, s.TypeName)
		}
		byType[s.TypeName] = append(byType[s.TypeName], s.Symbol)
	}

	for _, name := range typeOrder {
		b.WriteString("\n  ")
		b.WriteString(name)
		b.WriteString(":\n")
		for _, sym := range byType[name] {
			b.WriteString("    - ")
			b.WriteString(sym)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingSymbolsError) Is(target error) bool {
	if _, ok := target.(*MissingSymbolsError); ok {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Phase == PhaseBind && t.Kind == KindMissingSymbol
	}
	return false
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
