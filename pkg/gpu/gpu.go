// Package gpu abstracts texture storage and rendering-context
// ownership for the client. The display thread owns one context;
// background tracking work binds its own offscreen context.
package gpu

// Texture is an opaque handle to an allocated render target.
type Texture struct {
	ID     uint32
	Width  int
	Height int
}

// Allocator creates and frees textures in the bound context.
// Callers free every texture they allocate; handles are invalid after
// DeleteTextures returns.
type Allocator interface {
	// CreateTextures allocates n textures of the given size.
	CreateTextures(n, width, height int) ([]Texture, error)

	// DeleteTextures releases previously allocated textures.
	// Unknown handles are ignored.
	DeleteTextures(textures []Texture)
}

// ContextState reports whether a rendering context is bound on the
// calling thread.
type ContextState interface {
	Bound() bool
}

// Context is a rendering context that can be made current on an OS
// thread.
type Context interface {
	// MakeCurrent binds the context to the calling thread. The
	// caller must have locked its OS thread first.
	MakeCurrent() error

	// Release unbinds and destroys the context.
	Release()
}

// ContextFactory creates offscreen contexts that share resources with
// the display context.
type ContextFactory interface {
	NewOffscreen() (Context, error)
}
