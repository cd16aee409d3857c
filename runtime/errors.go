package runtime

import "fmt"

// DiagnosticKind categorises runtime failures so callers (and tests)
// can branch on failure kind instead of string-matching Message.
type DiagnosticKind int

const (
	DiagUndefinedIdentifier DiagnosticKind = iota
	DiagIndexOutOfRange
	DiagKeyNotFound
	DiagTypeMismatch
	DiagTypeMismatchDetailed
	DiagReturnTypeMismatch
	DiagInvalidConditionType
	DiagInvalidIteratorType
	DiagNotCallable
	DiagUnknownMember
	DiagUnknownStruct
	DiagUnknownEnumVariant
	DiagCircularImport
	DiagRecursionLimitExceeded
	DiagDivisionByZero
	DiagFileNotFound
	DiagPathNotAllowed
	DiagUnsupportedReceiver
	DiagUnsupportedMethod
	DiagAssertionFailed
	DiagSyntaxError
	DiagModuleNotFound
)

var diagnosticNames = map[DiagnosticKind]string{
	DiagUndefinedIdentifier:    "UndefinedIdentifier",
	DiagIndexOutOfRange:        "IndexOutOfRange",
	DiagKeyNotFound:            "KeyNotFound",
	DiagTypeMismatch:           "TypeMismatch",
	DiagTypeMismatchDetailed:   "TypeMismatchDetailed",
	DiagReturnTypeMismatch:     "ReturnTypeMismatch",
	DiagInvalidConditionType:   "InvalidConditionType",
	DiagInvalidIteratorType:    "InvalidIteratorType",
	DiagNotCallable:            "NotCallable",
	DiagUnknownMember:          "UnknownMember",
	DiagUnknownStruct:          "UnknownStruct",
	DiagUnknownEnumVariant:     "UnknownEnumVariant",
	DiagCircularImport:         "CircularImport",
	DiagRecursionLimitExceeded: "RecursionLimitExceeded",
	DiagDivisionByZero:         "DivisionByZero",
	DiagFileNotFound:           "FileNotFound",
	DiagPathNotAllowed:         "PathNotAllowed",
	DiagUnsupportedReceiver:    "UnsupportedReceiver",
	DiagUnsupportedMethod:      "UnsupportedMethod",
	DiagAssertionFailed:        "AssertionFailed",
	DiagSyntaxError:            "SyntaxError",
	DiagModuleNotFound:         "ModuleNotFound",
}

func (k DiagnosticKind) String() string {
	if s, ok := diagnosticNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Error is a rendered runtime diagnostic. Line/Column are 0 when no
// source span was attached by the analyzer.
type Error struct {
	Kind    DiagnosticKind
	Message string
	Line    int
	Column  int
}

func (e *Error) Error() string {
	if e == nil {
		return "runtime error: unknown"
	}
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("%s at %d:%d: %s", e.Kind, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind DiagnosticKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NewErrorAt(kind DiagnosticKind, message string, line, column int) *Error {
	return &Error{Kind: kind, Message: message, Line: line, Column: column}
}

func errUndefinedIdentifier(name string) *Error {
	return NewError(DiagUndefinedIdentifier, fmt.Sprintf("undefined identifier '%s'", name))
}

func errIndexOutOfRange(idx, len int) *Error {
	return NewError(DiagIndexOutOfRange, fmt.Sprintf("index %d out of range (length %d)", idx, len))
}

func errKeyNotFound(key string) *Error {
	return NewError(DiagKeyNotFound, fmt.Sprintf("key '%s' not found", key))
}

func errTypeMismatch(expected, got string) *Error {
	return NewError(DiagTypeMismatch, fmt.Sprintf("expected %s, got %s", expected, got))
}

func errNotCallable(typeName string) *Error {
	return NewError(DiagNotCallable, fmt.Sprintf("value of type %s is not callable", typeName))
}

func errUnknownMember(typeName, member string) *Error {
	return NewError(DiagUnknownMember, fmt.Sprintf("%s has no member '%s'", typeName, member))
}

func errUnknownStruct(name string) *Error {
	return NewError(DiagUnknownStruct, fmt.Sprintf("unknown struct type '%s'", name))
}

func errUnknownEnumVariant(typeName, variant string) *Error {
	return NewError(DiagUnknownEnumVariant, fmt.Sprintf("%s has no variant '%s'", typeName, variant))
}

func errDivisionByZero() *Error {
	return NewError(DiagDivisionByZero, "division by zero")
}

func errRecursionLimitExceeded(limit int) *Error {
	return NewError(DiagRecursionLimitExceeded, fmt.Sprintf("recursion limit of %d exceeded", limit))
}

func errUnsupportedReceiver(typeName string) *Error {
	return NewError(DiagUnsupportedReceiver, fmt.Sprintf("type %s does not support method dispatch", typeName))
}

func errUnsupportedMethod(typeName, method string) *Error {
	return NewError(DiagUnsupportedMethod, fmt.Sprintf("%s has no method '%s'", typeName, method))
}

func errInvalidIteratorType(typeName string) *Error {
	return NewError(DiagInvalidIteratorType, fmt.Sprintf("cannot iterate over %s", typeName))
}

func errInvalidConditionType(typeName string) *Error {
	return NewError(DiagInvalidConditionType, fmt.Sprintf("condition must be bool, got %s", typeName))
}

// NewSyntaxError keeps the frontend's (message, line, column) calling
// convention the lexer/parser were already written against, routed
// through the same DiagnosticKind taxonomy the execution core uses.
func NewSyntaxError(message string, line, column int) *Error {
	return NewErrorAt(DiagSyntaxError, message, line, column)
}
