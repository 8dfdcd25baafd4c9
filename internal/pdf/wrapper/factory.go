package wrapper

import (
	"fmt"
)

// PDFLibraryFactory creates PDF readers and writers behind a unified interface
type PDFLibraryFactory struct {
	defaultLibrary LibraryType
	config         FactoryConfig
}

// FactoryConfig contains configuration options for the factory
type FactoryConfig struct {
	// PreferredLibrary is the default library to use when LibraryAuto is specified
	PreferredLibrary LibraryType `json:"preferred_library"`

	// MaxFileSize limits the size of documents handed to a library (in bytes)
	MaxFileSize int64 `json:"max_file_size"`

	// DebugMode logs each document a library opens or writes
	DebugMode bool `json:"debug_mode"`
}

// NewPDFLibraryFactory creates a new factory with default configuration
func NewPDFLibraryFactory() *PDFLibraryFactory {
	return &PDFLibraryFactory{
		defaultLibrary: LibraryAuto,
		config: FactoryConfig{
			PreferredLibrary: LibraryLedongthuc,
			MaxFileSize:      100 * 1024 * 1024, // 100MB
		},
	}
}

// NewPDFLibraryFactoryWithConfig creates a factory with custom configuration
func NewPDFLibraryFactoryWithConfig(config FactoryConfig) *PDFLibraryFactory {
	return &PDFLibraryFactory{
		defaultLibrary: config.PreferredLibrary,
		config:         config,
	}
}

// CreateSource instantiates a text source of the specified type
func (f *PDFLibraryFactory) CreateSource(libType LibraryType) (Source, error) {
	switch libType {
	case LibraryLedongthuc:
		return NewLedongthucLibrary(f.config), nil
	case LibraryAuto:
		// only ledongthuc reports per-glyph positions
		return f.CreateSource(LibraryLedongthuc)
	case LibraryPDFCPU:
		return nil, &WrapperError{
			Library: libType,
			Op:      "create_source",
			Err:     fmt.Errorf("%s does not expose positioned text", libType),
		}
	default:
		return nil, &WrapperError{
			Library: libType,
			Op:      "create_source",
			Err:     fmt.Errorf("unknown library type: %s", libType),
		}
	}
}

// CreateWriter instantiates a PDF writer of the specified type
func (f *PDFLibraryFactory) CreateWriter(libType LibraryType) (Writer, error) {
	switch libType {
	case LibraryPDFCPU:
		return NewPDFCPULibrary(f.config), nil
	case LibraryAuto:
		// only pdfcpu can rewrite the document
		return f.CreateWriter(LibraryPDFCPU)
	case LibraryLedongthuc:
		return nil, &WrapperError{
			Library: libType,
			Op:      "create_writer",
			Err:     fmt.Errorf("%s is read-only", libType),
		}
	default:
		return nil, &WrapperError{
			Library: libType,
			Op:      "create_writer",
			Err:     fmt.Errorf("unknown library type: %s", libType),
		}
	}
}

// checkSize rejects empty documents and those above the configured limit
func checkSize(config FactoryConfig, lib LibraryType, data []byte) error {
	if len(data) == 0 {
		return &WrapperError{Library: lib, Op: "open", Err: fmt.Errorf("empty document")}
	}
	if config.MaxFileSize > 0 && int64(len(data)) > config.MaxFileSize {
		return &WrapperError{
			Library: lib,
			Op:      "open",
			Err:     fmt.Errorf("document size %d exceeds maximum %d", len(data), config.MaxFileSize),
		}
	}
	return nil
}

// GetDefaultLibrary returns the current default library type
func (f *PDFLibraryFactory) GetDefaultLibrary() LibraryType {
	return f.defaultLibrary
}

// GetConfig returns the current factory configuration
func (f *PDFLibraryFactory) GetConfig() FactoryConfig {
	return f.config
}

// GetSupportedLibraries returns a list of all supported library types
func (f *PDFLibraryFactory) GetSupportedLibraries() []LibraryType {
	return []LibraryType{
		LibraryPDFCPU,
		LibraryLedongthuc,
		LibraryAuto,
	}
}

// ValidateLibraryType checks if a library type is supported
func (f *PDFLibraryFactory) ValidateLibraryType(libType LibraryType) error {
	for _, supported := range f.GetSupportedLibraries() {
		if libType == supported {
			return nil
		}
	}
	return &WrapperError{
		Library: libType,
		Op:      "validate",
		Err:     fmt.Errorf("unsupported library type: %s", libType),
	}
}
