package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10099: Generic errors
// 10100-10199: Configuration errors
// 10200-10299: Cache & snapshot errors
// 10300-10399: Frontend client errors
// 10400-10499: Sandbox errors
// 10500-10599: Judge pipeline errors
// 10600-10699: Queue & worker errors
// 10700-10799: Test-data errors

const (
	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalError ErrorCode = 10001
	InvalidParams ErrorCode = 10002
	NotFound      ErrorCode = 10003
	Unauthorized  ErrorCode = 10004
	Timeout       ErrorCode = 10005

	// Configuration errors (10100-10199)
	ConfigMissing ErrorCode = 10100
	ConfigInvalid ErrorCode = 10101

	// Cache & snapshot errors (10200-10299)
	CacheError        ErrorCode = 10200
	SnapshotNotFound  ErrorCode = 10201
	ChecksumMismatch  ErrorCode = 10202
	SnapshotCorrupted ErrorCode = 10203

	// Frontend client errors (10300-10399)
	FrontendError       ErrorCode = 10300
	FrontendUnavailable ErrorCode = 10301
	ReportFailed        ErrorCode = 10302

	// Sandbox errors (10400-10499)
	SandboxError        ErrorCode = 10400
	SandboxInitFailed   ErrorCode = 10401
	SandboxRunFailed    ErrorCode = 10402
	SandboxCleanupError ErrorCode = 10403
	MetadataInvalid     ErrorCode = 10404

	// Judge pipeline errors (10500-10599)
	CompilationError     ErrorCode = 10500
	GraderError          ErrorCode = 10501
	JudgeSystemError     ErrorCode = 10502
	LanguageNotSupported ErrorCode = 10503

	// Queue & worker errors (10600-10699)
	QueueError     ErrorCode = 10600
	QueueClosed    ErrorCode = 10601
	WorkerStopped  ErrorCode = 10602
	ShutdownActive ErrorCode = 10603

	// Test-data errors (10700-10799)
	TestDataError    ErrorCode = 10700
	TestCaseNotFound ErrorCode = 10701
	DataPackError    ErrorCode = 10702
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:       "Success",
	InternalError: "Internal error",
	InvalidParams: "Invalid parameters",
	NotFound:      "Resource not found",
	Unauthorized:  "Unauthorized access",
	Timeout:       "Operation timeout",

	ConfigMissing: "Configuration file is missing",
	ConfigInvalid: "Configuration is invalid",

	CacheError:        "Task info cache operation failed",
	SnapshotNotFound:  "Task info snapshot not found",
	ChecksumMismatch:  "Task info checksum does not match",
	SnapshotCorrupted: "Task info snapshot is corrupted",

	FrontendError:       "Frontend request failed",
	FrontendUnavailable: "Frontend is unavailable",
	ReportFailed:        "Verdict report delivery failed",

	SandboxError:        "Sandbox operation failed",
	SandboxInitFailed:   "Sandbox initialization failed",
	SandboxRunFailed:    "Sandbox execution failed",
	SandboxCleanupError: "Sandbox cleanup failed",
	MetadataInvalid:     "Sandbox metadata is invalid",

	CompilationError:     "Compilation error",
	GraderError:          "Grader execution failed",
	JudgeSystemError:     "Judge system error",
	LanguageNotSupported: "Programming language not supported",

	QueueError:     "Judge queue operation failed",
	QueueClosed:    "Judge queue is closed",
	WorkerStopped:  "Judge worker has stopped",
	ShutdownActive: "Shutdown in progress",

	TestDataError:    "Test data operation failed",
	TestCaseNotFound: "Test case not found",
	DataPackError:    "Test data pack update failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized:
		return 401
	case c == NotFound, c == SnapshotNotFound, c == TestCaseNotFound:
		return 404
	case c == InvalidParams:
		return 400
	case c == FrontendUnavailable, c == ShutdownActive:
		return 503
	default:
		return 500
	}
}
