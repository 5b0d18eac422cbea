package service

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
)

// ErrUploadRejected is returned when an upload fails the admission policy
var ErrUploadRejected = errors.New("upload rejected by policy")

// UploadInfo describes an upload before any bytes are stored
type UploadInfo struct {
	Size        int64
	ContentType string
	FileName    string
	Kind        string
	Creator     string
}

// UploadPolicy admits or rejects uploads with a CEL expression over
// size, content_type, filename, kind and creator
type UploadPolicy struct {
	expr string
	prg  cel.Program
}

// DefaultPolicy caps the upload size
func DefaultPolicy(maxBytes int64) string {
	return fmt.Sprintf("size <= %d", maxBytes)
}

// NewUploadPolicy compiles expr. An empty expr falls back to DefaultPolicy.
func NewUploadPolicy(expr string, maxBytes int64) (*UploadPolicy, error) {
	if expr == "" {
		expr = DefaultPolicy(maxBytes)
	}

	env, err := cel.NewEnv(
		cel.Variable("size", cel.IntType),
		cel.Variable("content_type", cel.StringType),
		cel.Variable("filename", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("creator", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("upload policy must return bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &UploadPolicy{expr: expr, prg: prg}, nil
}

// Expression returns the compiled source
func (p *UploadPolicy) Expression() string {
	return p.expr
}

// Check returns ErrUploadRejected when info does not satisfy the policy
func (p *UploadPolicy) Check(info UploadInfo) error {
	out, _, err := p.prg.Eval(map[string]interface{}{
		"size":         info.Size,
		"content_type": info.ContentType,
		"filename":     info.FileName,
		"kind":         info.Kind,
		"creator":      info.Creator,
	})
	if err != nil {
		return fmt.Errorf("CEL evaluation error: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrUploadRejected, p.expr)
	}
	return nil
}
