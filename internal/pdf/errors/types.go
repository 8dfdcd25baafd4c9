package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// PDFError is the error returned by every PDF-facing operation in this module.
// The Type decides whether callers abort (fatal) or degrade to an empty result.
type PDFError struct {
	Type        ErrorType `json:"type"`
	Op          string    `json:"op,omitempty"`
	Message     string    `json:"message"`
	Context     string    `json:"context,omitempty"`
	PageNumber  int       `json:"page_number,omitempty"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
	Err         error     `json:"-"`
}

// ErrorType represents the categories of failures the pipeline distinguishes
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeDecode: the source could not be parsed or a page could not be read.
	ErrorTypeDecode
	// ErrorTypeExtraction: field extraction could not run; surfaced as empty values.
	ErrorTypeExtraction
	// ErrorTypeGeneration: overlaying or serializing the output PDF failed.
	ErrorTypeGeneration
	// ErrorTypeFetch: the PDF bytes could not be loaded from storage or the network.
	ErrorTypeFetch
	// ErrorTypePageRange: a field references a page the document does not have.
	ErrorTypePageRange
)

// Error implements the error interface
func (e *PDFError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type.String(), e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Type.String(), e.Op, e.Message)
	}
	if e.PageNumber > 0 {
		msg += fmt.Sprintf(" (page %d)", e.PageNumber)
	}
	if e.Context != "" {
		msg += ": " + e.Context
	}
	return msg
}

// Unwrap exposes the underlying cause
func (e *PDFError) Unwrap() error {
	return e.Err
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeDecode:
		return "DECODE"
	case ErrorTypeExtraction:
		return "EXTRACTION"
	case ErrorTypeGeneration:
		return "GENERATION"
	case ErrorTypeFetch:
		return "FETCH"
	case ErrorTypePageRange:
		return "PAGE_RANGE"
	default:
		return "UNKNOWN"
	}
}

// IsRecoverable reports whether the calling flow may continue with an empty result
func (et ErrorType) IsRecoverable() bool {
	switch et {
	case ErrorTypeExtraction:
		return true
	default:
		return false
	}
}

// NewPDFError creates a new PDFError
func NewPDFError(errorType ErrorType, op, message string) *PDFError {
	return &PDFError{
		Type:        errorType,
		Op:          op,
		Message:     message,
		Recoverable: errorType.IsRecoverable(),
		Timestamp:   time.Now(),
	}
}

// WrapError wraps a standard error as a PDFError
func WrapError(errorType ErrorType, op string, err error) *PDFError {
	e := NewPDFError(errorType, op, "operation failed")
	if err != nil {
		e.Message = err.Error()
		e.Err = err
	}
	return e
}

// NewDecodeError reports a document that could not be decoded
func NewDecodeError(op string, err error) *PDFError {
	return WrapError(ErrorTypeDecode, op, err)
}

// NewExtractionError reports a field extraction that fell back to empty values
func NewExtractionError(op string, err error) *PDFError {
	return WrapError(ErrorTypeExtraction, op, err)
}

// NewGenerationError reports a failed regeneration
func NewGenerationError(op string, err error) *PDFError {
	return WrapError(ErrorTypeGeneration, op, err)
}

// WithContext adds context to an existing PDFError
func (e *PDFError) WithContext(context string) *PDFError {
	e.Context = context
	return e
}

// WithPage adds page number information to an existing PDFError
func (e *PDFError) WithPage(pageNumber int) *PDFError {
	e.PageNumber = pageNumber
	return e
}

// IsType reports whether any error in err's chain is a PDFError of the given type
func IsType(err error, errorType ErrorType) bool {
	var pdfErr *PDFError
	for err != nil {
		if !stderrors.As(err, &pdfErr) {
			return false
		}
		if pdfErr.Type == errorType {
			return true
		}
		err = pdfErr.Err
	}
	return false
}

// IsDecode reports whether err is a decode failure
func IsDecode(err error) bool { return IsType(err, ErrorTypeDecode) }

// IsExtraction reports whether err is a recoverable extraction failure
func IsExtraction(err error) bool { return IsType(err, ErrorTypeExtraction) }

// IsGeneration reports whether err is a generation failure
func IsGeneration(err error) bool { return IsType(err, ErrorTypeGeneration) }
