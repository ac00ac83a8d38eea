package builder

import (
	"context"
)

// StaticBuilder handles apps with nothing to build; the source tree is
// served as-is. It is the fallback when no other builder applies.
type StaticBuilder struct{}

// NewStaticBuilder creates the passthrough builder.
func NewStaticBuilder() *StaticBuilder {
	return &StaticBuilder{}
}

func (b *StaticBuilder) Name() string {
	return "static"
}

func (b *StaticBuilder) Detect(req *Request) bool {
	return true
}

func (b *StaticBuilder) Build(ctx context.Context, req *Request) error {
	return nil
}
