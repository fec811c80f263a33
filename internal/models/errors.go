package models

// RecoverableError is implemented by errors that carry structured context and
// a remediation hint. The store, claude and output packages share it through
// this package to avoid import cycles.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}
